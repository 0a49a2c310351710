package commonerrors

import "net/http"

var (
	ErrMissingRequiredEnv = NewDomainError(
		"missing_required_env",
		CategoryValidation,
		http.StatusInternalServerError,
		"missing required environment variable",
	)

	ErrInvalidJWTSecret = NewDomainError(
		"invalid_jwt_secret",
		CategoryValidation,
		http.StatusInternalServerError,
		"JWT_SECRET must be at least 32 bytes",
	)

	ErrInvalidConfig = NewDomainError(
		"invalid_config",
		CategoryValidation,
		http.StatusInternalServerError,
		"invalid configuration",
	)

	ErrInvalidRequest = NewDomainError(
		"invalid_request",
		CategoryValidation,
		http.StatusBadRequest,
		"invalid request",
	)

	ErrInvalidJSON = NewDomainError(
		"invalid_json",
		CategoryValidation,
		http.StatusBadRequest,
		"invalid json",
	)

	ErrInvalidHandle = NewDomainError(
		"invalid_handle",
		CategoryValidation,
		http.StatusBadRequest,
		"handle must be 3-32 characters of a-z, 0-9, '_' or '-' and start and end alphanumeric",
	)

	ErrInvalidPassword = NewDomainError(
		"invalid_password",
		CategoryValidation,
		http.StatusBadRequest,
		"password must be 8-72 characters and contain a letter and a digit",
	)

	ErrInvalidKeyFormat = NewDomainError(
		"invalid_key_format",
		CategoryValidation,
		http.StatusBadRequest,
		"public key must be a 32-byte Ed25519 key in base64 or hex",
	)

	ErrInvalidPayload = NewDomainError(
		"invalid_payload",
		CategoryValidation,
		http.StatusBadRequest,
		"invalid payload",
	)

	ErrEmptyMessage = NewDomainError(
		"empty_message",
		CategoryValidation,
		http.StatusBadRequest,
		"message requires text or payload",
	)

	ErrMessageTooLong = NewDomainError(
		"message_too_long",
		CategoryValidation,
		http.StatusBadRequest,
		"message text exceeds maximum length",
	)

	ErrInvalidRecipient = NewDomainError(
		"invalid_recipient",
		CategoryValidation,
		http.StatusBadRequest,
		"sender and recipient must differ",
	)

	ErrInvalidMessageID = NewDomainError(
		"invalid_message_id",
		CategoryValidation,
		http.StatusBadRequest,
		"invalid message id",
	)

	ErrSameRecoveryKey = NewDomainError(
		"recovery_key_matches_signing_key",
		CategoryValidation,
		http.StatusBadRequest,
		"recovery key must differ from the signing key",
	)

	ErrMissingAuthorization = NewDomainError(
		"missing_authorization",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"missing or invalid authorization",
	)

	ErrInvalidToken = NewDomainError(
		"invalid_token",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"token is not valid",
	)

	ErrSessionInvalidated = NewDomainError(
		"session_invalidated",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"session was issued before the last key rotation",
	)

	ErrInvalidCredentials = NewDomainError(
		"invalid_credentials",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"invalid credentials",
	)

	ErrInvalidSignature = NewDomainError(
		"invalid_signature",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"signature does not match",
	)

	ErrNoPublicKey = NewDomainError(
		"no_public_key",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"no public key registered for sender",
	)

	ErrReplayDetected = NewDomainError(
		"replay_detected",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"message timestamp outside the replay window",
	)

	ErrInvalidTimestamp = NewDomainError(
		"invalid_timestamp",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"timestamp missing or outside the allowed window",
	)

	ErrInvalidRecoveryProof = NewDomainError(
		"invalid_recovery_proof",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"recovery proof signature is invalid",
	)

	ErrReplayAttack = NewDomainError(
		"replay_attack",
		CategoryUnauthorized,
		http.StatusUnauthorized,
		"nonce already used",
	)

	ErrForbidden = NewDomainError(
		"forbidden",
		CategoryForbidden,
		http.StatusForbidden,
		"not allowed to act for this identity",
	)

	ErrNoRecoveryKey = NewDomainError(
		"no_recovery_key",
		CategoryForbidden,
		http.StatusForbidden,
		"no recovery key registered; enroll one first",
	)

	ErrIdentityRevoked = NewDomainError(
		"identity_revoked",
		CategoryForbidden,
		http.StatusForbidden,
		"identity is revoked",
	)

	ErrConsentBlocked = NewDomainError(
		"consent_blocked",
		CategoryForbidden,
		http.StatusForbidden,
		"recipient has blocked this sender",
	)

	ErrUserNotFound = NewDomainError(
		"user_not_found",
		CategoryNotFound,
		http.StatusNotFound,
		"user not found",
	)

	ErrRecipientNotFound = NewDomainError(
		"recipient_not_found",
		CategoryNotFound,
		http.StatusNotFound,
		"recipient not found",
	)

	ErrMessageNotFound = NewDomainError(
		"message_not_found",
		CategoryNotFound,
		http.StatusNotFound,
		"message not found",
	)

	ErrConsentNotFound = NewDomainError(
		"consent_not_found",
		CategoryNotFound,
		http.StatusNotFound,
		"consent record not found",
	)

	ErrHandleTaken = NewDomainError(
		"handle_taken",
		CategoryConflict,
		http.StatusConflict,
		"handle already taken",
	)

	ErrKeyAlreadySet = NewDomainError(
		"key_already_set",
		CategoryConflict,
		http.StatusConflict,
		"new key equals the current key",
	)

	ErrRecoveryKeyAlreadySet = NewDomainError(
		"recovery_key_already_set",
		CategoryConflict,
		http.StatusConflict,
		"recovery key already enrolled",
	)

	ErrRotationConflict = NewDomainError(
		"rotation_conflict",
		CategoryConflict,
		http.StatusConflict,
		"key changed concurrently",
	)

	ErrMessageIDConflict = NewDomainError(
		"message_id_conflict",
		CategoryConflict,
		http.StatusConflict,
		"message id already used by another sender",
	)

	ErrRateLimited = NewDomainError(
		"rate_limited",
		CategoryRateLimited,
		http.StatusTooManyRequests,
		"rate limit exceeded",
	)

	ErrInternalError = NewDomainError(
		"internal_error",
		CategoryInternal,
		http.StatusInternalServerError,
		"internal server error",
	)

	ErrStorageUnavailable = NewDomainError(
		"storage_unavailable",
		CategoryExternal,
		http.StatusServiceUnavailable,
		"storage temporarily unavailable",
	)

	ErrCircuitOpen = NewDomainError(
		"circuit_open",
		CategoryExternal,
		http.StatusServiceUnavailable,
		"circuit breaker is open",
	)

	ErrUserNotConnected = NewDomainError(
		"user_not_connected",
		CategoryNotFound,
		http.StatusNotFound,
		"user not connected",
	)
)
