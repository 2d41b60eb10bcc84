package storage

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

var (
	// ErrItemNotFound is returned when a requested task does not exist.
	ErrItemNotFound = errors.New("item not found")
	// ErrCollectionNotFound is returned when a whole backing table is missing.
	ErrCollectionNotFound = errors.New("collection not found")
)

// mapNotFound translates storage-level 404s into the package's error
// taxonomy. Anything else propagates with its original message.
func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	if respErr.ErrorCode == "TableNotFound" {
		return ErrCollectionNotFound
	}
	if respErr.StatusCode == http.StatusNotFound {
		return ErrItemNotFound
	}
	return err
}
