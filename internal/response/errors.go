package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"
	ErrNotInvited        ErrCode = "NOT_INVITED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Virtual room ──────────────────────────────────────────────────
	ErrAssignmentInactive  ErrCode = "ASSIGNMENT_INACTIVE"
	ErrAssignmentExpired   ErrCode = "ASSIGNMENT_EXPIRED"
	ErrNotSupervisedMode   ErrCode = "NOT_SUPERVISED_MODE"
	ErrRoomNotFound        ErrCode = "ROOM_NOT_FOUND"
	ErrRoomNotWaiting      ErrCode = "ROOM_NOT_WAITING"
	ErrRoomClosed          ErrCode = "ROOM_CLOSED"
	ErrRoomNotReady        ErrCode = "ROOM_NOT_READY"
	ErrParticipantNotFound ErrCode = "PARTICIPANT_NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrStaffAccessOnly:
		return "Sumber daya ini terbatas untuk pengawas."
	case ErrNotInvited:
		return "Anda tidak terdaftar sebagai peserta ujian ini."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Virtual room ──────────────────────────────────────────────────
	case ErrAssignmentInactive:
		return "Penugasan ujian ini tidak aktif."
	case ErrAssignmentExpired:
		return "Periode penugasan ujian ini telah berakhir."
	case ErrNotSupervisedMode:
		return "Simulasi ini tidak menggunakan ruang ujian terawasi."
	case ErrRoomNotFound:
		return "Ruang ujian tidak ditemukan."
	case ErrRoomNotWaiting:
		return "Ruang ujian tidak dalam status menunggu."
	case ErrRoomClosed:
		return "Ruang ujian sudah ditutup."
	case ErrRoomNotReady:
		return "Belum semua peserta terhubung ke ruang ujian."
	case ErrParticipantNotFound:
		return "Peserta tidak ditemukan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
