package common

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefops/internal/models"
)

func TestValidateStruct(t *testing.T) {
	valid := models.AllocateInput{
		RequestID:  uuid.New(),
		Warehouses: []models.WarehouseAllocation{{WarehouseLocation: "North", Quantity: 10}},
	}
	assert.NoError(t, ValidateStruct(valid))

	err := ValidateStruct(models.AllocateInput{RequestID: uuid.New()})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "warehouses", ve.Field)

	err = ValidateStruct(models.AllocateInput{
		RequestID:  uuid.New(),
		Warehouses: []models.WarehouseAllocation{{WarehouseLocation: "North", Quantity: -1}},
	})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "quantity", ve.Field)
}

func TestValidateUUID(t *testing.T) {
	id := uuid.New()
	got, err := ValidateUUID(" "+id.String()+" ", "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ValidateUUID("", "id")
	assert.True(t, IsValidation(err))
	_, err = ValidateUUID("not-a-uuid", "id")
	assert.True(t, IsValidation(err))
}
