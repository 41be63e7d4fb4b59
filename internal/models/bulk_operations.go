package models

import (
	"time"
)

// Sweep item statuses
const (
	SweepItemSucceeded = "success"
	SweepItemSkipped   = "skipped"
	SweepItemFailed    = "failed"
)

// BulkOperationResult is the outcome of a sweep over independent items.
// One bad item never aborts the batch; its error is collected here.
type BulkOperationResult struct {
	OperationID    string               `json:"operation_id"`
	Status         string               `json:"status"` // completed, partial, failed
	TotalItems     int                  `json:"total_items"`
	ProcessedItems int                  `json:"processed_items"`
	FailedItems    int                  `json:"failed_items"`
	StartTime      time.Time            `json:"start_time"`
	CompletionTime *time.Time           `json:"completion_time,omitempty"`
	Errors         []BulkOperationError `json:"errors,omitempty"`
	Items          []BulkOperationItem  `json:"items,omitempty"`
}

// BulkOperationError represents an error for a specific item
type BulkOperationError struct {
	ItemIndex int    `json:"item_index"`
	ItemID    string `json:"item_id"`
	Error     string `json:"error"`
}

// BulkOperationItem represents the result for a specific item
type BulkOperationItem struct {
	ItemIndex int     `json:"item_index"`
	ItemID    string  `json:"item_id"`
	Status    string  `json:"status"`
	Detail    string  `json:"detail,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// NewBulkOperationResult starts a result for total items.
func NewBulkOperationResult(operationID string, total int, start time.Time) *BulkOperationResult {
	return &BulkOperationResult{
		OperationID: operationID,
		Status:      "processing",
		TotalItems:  total,
		StartTime:   start,
		Items:       make([]BulkOperationItem, total),
	}
}

// Record stores the outcome of item idx. Safe to call from one goroutine per index.
func (r *BulkOperationResult) Record(idx int, itemID, status, detail string, err error) {
	item := BulkOperationItem{ItemIndex: idx, ItemID: itemID, Status: status, Detail: detail}
	if err != nil {
		msg := err.Error()
		item.Status = SweepItemFailed
		item.Error = &msg
	}
	r.Items[idx] = item
}

// Finish tallies the per-item outcomes.
func (r *BulkOperationResult) Finish(end time.Time) {
	r.ProcessedItems, r.FailedItems, r.Errors = 0, 0, nil
	for _, item := range r.Items {
		if item.Status == SweepItemFailed {
			r.FailedItems++
			msg := ""
			if item.Error != nil {
				msg = *item.Error
			}
			r.Errors = append(r.Errors, BulkOperationError{ItemIndex: item.ItemIndex, ItemID: item.ItemID, Error: msg})
			continue
		}
		r.ProcessedItems++
	}
	switch {
	case r.FailedItems == 0:
		r.Status = "completed"
	case r.ProcessedItems == 0:
		r.Status = "failed"
	default:
		r.Status = "partial"
	}
	r.CompletionTime = &end
}
