// pkg/errors/storage.go
package errors

// Storage error codes
const (
	// StorageErrConnection indicates the store could not be reached
	StorageErrConnection = "STORAGE_CONNECTION"
	// StorageErrWrite indicates a write error
	StorageErrWrite = "STORAGE_WRITE"
	// StorageErrSerialization indicates a value could not be encoded
	StorageErrSerialization = "STORAGE_SERIALIZATION"
)

// Storage domain name
const StorageDomain = "storage"

// Storage operations
const (
	OpConnect   = "Connect"
	OpPublish   = "Publish"
	OpSerialize = "Serialize"
	OpClose     = "Close"
)

// StorageWrapWithCode wraps an error with storage domain and code
func StorageWrapWithCode(err error, operation string, code string, message string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Domain:    StorageDomain,
		Operation: operation,
		Code:      code,
		Message:   message,
		Original:  err,
	}
}

// IsStorageError checks if an error is a storage error with the given code
func IsStorageError(err error, code string) bool {
	var domainErr *Error
	if As(err, &domainErr) {
		return domainErr.Domain == StorageDomain && domainErr.Code == code
	}
	return false
}
