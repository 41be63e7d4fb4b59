package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type MockMinioService struct {
	mock.Mock
	uploaded []byte
}

func (m *MockMinioService) UploadObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) error {
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.uploaded = body
	args := m.Called(ctx, bucketName, objectName, objectSize, contentType)
	return args.Error(0)
}

func (m *MockMinioService) GetPresignedURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, bucketName, objectName, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockMinioService) DeleteObject(ctx context.Context, bucketName, objectName string) error {
	args := m.Called(ctx, bucketName, objectName)
	return args.Error(0)
}

func (m *MockMinioService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	args := m.Called(ctx, bucketName)
	return args.Error(0)
}

func (m *MockMinioService) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

type AuditArchiveServiceTestSuite struct {
	suite.Suite
	store   *repositories.MemoryStore
	minio   *MockMinioService
	service AuditArchiveService
	ctx     context.Context
	now     time.Time
}

func (suite *AuditArchiveServiceTestSuite) SetupTest() {
	suite.store = repositories.NewMemoryStore(time.Second)
	suite.minio = &MockMinioService{}
	suite.now = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	suite.service = NewAuditArchiveService(suite.store, suite.minio, "relief-audit", zap.NewNop(), func() time.Time { return suite.now })
	suite.ctx = context.Background()

	for i, age := range []time.Duration{90 * 24 * time.Hour, 60 * 24 * time.Hour, 24 * time.Hour} {
		suite.store.SeedAuditEntry(models.AuditEntry{
			ID:         uuid.New(),
			EntityType: models.EntityRequest,
			EntityID:   uuid.New().String(),
			Action:     models.ActionUpdate,
			Actor:      "ops-desk",
			Timestamp:  suite.now.Add(-age),
			AfterSnapshot: models.JSONB{
				"seq": i,
			},
		})
	}
}

func (suite *AuditArchiveServiceTestSuite) TestArchiveMovesOldEntries() {
	cutoff := suite.now.Add(-30 * 24 * time.Hour)
	suite.minio.On("EnsureBucketExists", mock.Anything, "relief-audit").Return(nil)
	suite.minio.On("UploadObject", mock.Anything, "relief-audit", mock.MatchedBy(func(name string) bool {
		return len(name) > len("audit/2025/09/01/") && name[:len("audit/2025/09/01/")] == "audit/2025/09/01/"
	}), mock.AnythingOfType("int64"), "application/json").Return(nil)

	result, err := suite.service.Archive(suite.ctx, adminOp, cutoff)
	suite.Require().NoError(err)
	suite.Equal(2, result.Archived)
	suite.True(result.Before.Equal(cutoff))

	remaining := suite.store.AuditEntries()
	suite.Require().Len(remaining, 1)
	suite.True(remaining[0].Timestamp.After(cutoff))

	var batch archiveBatch
	suite.Require().NoError(json.Unmarshal(suite.minio.uploaded, &batch))
	suite.Len(batch.Entries, 2)
	suite.Equal("coordinator", batch.ArchivedBy)
	suite.minio.AssertExpectations(suite.T())
}

func (suite *AuditArchiveServiceTestSuite) TestArchiveWithNothingToMove() {
	suite.minio.On("EnsureBucketExists", mock.Anything, "relief-audit").Return(nil)

	result, err := suite.service.Archive(suite.ctx, adminOp, suite.now.Add(-365*24*time.Hour))
	suite.Require().NoError(err)
	suite.Zero(result.Archived)
	suite.Empty(result.ObjectName)
	suite.Len(suite.store.AuditEntries(), 3)
	suite.minio.AssertNotCalled(suite.T(), "UploadObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *AuditArchiveServiceTestSuite) TestUploadFailureKeepsEntries() {
	suite.minio.On("EnsureBucketExists", mock.Anything, "relief-audit").Return(nil)
	suite.minio.On("UploadObject", mock.Anything, "relief-audit", mock.Anything, mock.Anything, "application/json").
		Return(errors.New("connection reset"))

	_, err := suite.service.Archive(suite.ctx, adminOp, suite.now.Add(-30*24*time.Hour))
	suite.Require().Error(err)
	suite.Contains(err.Error(), "upload archive batch")
	suite.Len(suite.store.AuditEntries(), 3)
}

// commitFailingScope runs fn to completion and then fails the commit.
type commitFailingScope struct {
	*repositories.MemoryStore
	err error
}

func (s commitFailingScope) Execute(ctx context.Context, lockWait time.Duration, fn func(ctx context.Context, repos repositories.Repos) error) error {
	return s.MemoryStore.Execute(ctx, lockWait, func(ctx context.Context, repos repositories.Repos) error {
		if err := fn(ctx, repos); err != nil {
			return err
		}
		return s.err
	})
}

func (suite *AuditArchiveServiceTestSuite) TestCommitFailureRemovesUploadedObject() {
	commitErr := errors.New("commit: connection lost")
	service := NewAuditArchiveService(commitFailingScope{suite.store, commitErr}, suite.minio, "relief-audit", zap.NewNop(), func() time.Time { return suite.now })

	var object string
	suite.minio.On("EnsureBucketExists", mock.Anything, "relief-audit").Return(nil)
	suite.minio.On("UploadObject", mock.Anything, "relief-audit", mock.Anything, mock.Anything, "application/json").
		Run(func(args mock.Arguments) { object = args.String(2) }).
		Return(nil)
	suite.minio.On("DeleteObject", mock.Anything, "relief-audit", mock.Anything).Return(nil)

	_, err := service.Archive(suite.ctx, adminOp, suite.now.Add(-30*24*time.Hour))
	suite.ErrorIs(err, commitErr)
	suite.Len(suite.store.AuditEntries(), 3)
	suite.Require().NotEmpty(object)
	suite.minio.AssertCalled(suite.T(), "DeleteObject", mock.Anything, "relief-audit", object)
}

func (suite *AuditArchiveServiceTestSuite) TestArchiveRequiresAdmin() {
	_, err := suite.service.Archive(suite.ctx, operatorOp, suite.now.Add(-30*24*time.Hour))
	suite.ErrorIs(err, common.ErrForbidden)

	_, err = suite.service.Archive(suite.ctx, adminOp, suite.now.Add(time.Hour))
	suite.True(common.IsValidation(err))

	_, err = suite.service.Archive(suite.ctx, adminOp, time.Time{})
	suite.True(common.IsValidation(err))
	suite.minio.AssertNotCalled(suite.T(), "EnsureBucketExists", mock.Anything, mock.Anything)
}

func (suite *AuditArchiveServiceTestSuite) TestBucketFailureStopsArchive() {
	suite.minio.On("EnsureBucketExists", mock.Anything, "relief-audit").Return(errors.New("access denied"))

	_, err := suite.service.Archive(suite.ctx, adminOp, suite.now.Add(-30*24*time.Hour))
	suite.Require().Error(err)
	suite.Len(suite.store.AuditEntries(), 3)
}

func (suite *AuditArchiveServiceTestSuite) TestArchiveURL() {
	suite.minio.On("GetPresignedURL", mock.Anything, "relief-audit", "audit/2025/09/01/x.json", time.Hour).
		Return("https://minio.local/relief-audit/audit/2025/09/01/x.json?sig=1", nil)

	url, err := suite.service.ArchiveURL(suite.ctx, "audit/2025/09/01/x.json", time.Hour)
	suite.Require().NoError(err)
	suite.Contains(url, "sig=1")

	_, err = suite.service.ArchiveURL(suite.ctx, "", time.Hour)
	suite.True(common.IsValidation(err))
}

func TestAuditArchiveServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuditArchiveServiceTestSuite))
}
