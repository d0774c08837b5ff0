package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument  = 1000
	ErrCodeInvalidJSON      = 1001
	ErrCodeRequestTooLarge  = 1002
	ErrCodeInvalidQuery     = 1003
	ErrCodeInvalidID        = 1004
	ErrCodeInvalidTitle     = 1005
	ErrCodeInvalidDocument  = 1006
	ErrCodeUnsupportedMedia = 1007
	ErrCodeMissingRequired  = 1009
	ErrCodeInvalidParams    = 1010

	// Domain state (2xxx)
	ErrCodeBoardNotFound   = 2001
	ErrCodeFileNotFound    = 2002
	ErrCodeServiceNotFound = 2003
	ErrCodeMethodNotFound  = 2004
	ErrCodeRouteNotFound   = 2005
	ErrCodeUserNotFound    = 2006
	ErrCodeUserExists      = 2101
	ErrCodeConflict        = 2102
	ErrCodeInvalidToken    = 2103

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003
	ErrCodeSignupClosed      = 3004

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeExportFailed   = 4003
	ErrCodeImportFailed   = 4004
	ErrCodeNotImplemented = 4005
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeRouteNotFound
	case 409:
		return ErrCodeConflict
	case 413:
		return ErrCodeRequestTooLarge
	case 415:
		return ErrCodeUnsupportedMedia
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501, 503:
		return ErrCodeNotImplemented
	default:
		return 0
	}
}
