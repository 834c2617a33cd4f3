package rag

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/genai"
)

// ErrSafetyBlocked is returned when the provider refuses to answer because
// the prompt or response tripped a safety filter.
var ErrSafetyBlocked = errors.New("rag: response blocked by safety filter")

// FailureClass partitions generation errors so the caller can choose the
// right user-facing apology without inspecting provider internals.
type FailureClass string

const (
	FailureQuota      FailureClass = "quota"
	FailureCredential FailureClass = "credential"
	FailureNetwork    FailureClass = "network"
	FailureSafety     FailureClass = "safety"
	FailureUnknown    FailureClass = "unknown"
)

// Classify maps a generation error to its failure class. Provider errors are
// matched structurally where the SDK exposes a typed error, with message
// sniffing as a fallback for wrapped or transport-level failures.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureUnknown
	}
	if errors.Is(err, ErrSafetyBlocked) {
		return FailureSafety
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return FailureQuota
		case 401, 403:
			return FailureCredential
		case 500, 502, 503, 504:
			return FailureNetwork
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return FailureQuota
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthenticated") || strings.Contains(msg, "permission") || strings.Contains(msg, "credential") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return FailureCredential
	case strings.Contains(msg, "safety") || strings.Contains(msg, "blocked"):
		return FailureSafety
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "dial") || strings.Contains(msg, "eof"):
		return FailureNetwork
	}
	return FailureUnknown
}

// Apology returns the Indonesian fallback message for a failure class. The
// assistant always replies with something, so these are complete sentences
// a student can act on.
func Apology(class FailureClass) string {
	switch class {
	case FailureQuota:
		return "Maaf, layanan sedang sangat sibuk saat ini. Silakan coba lagi dalam beberapa menit ya."
	case FailureCredential:
		return "Maaf, ada kendala konfigurasi pada layanan kami. Tim kami sedang menanganinya, silakan coba lagi nanti."
	case FailureNetwork:
		return "Maaf, koneksi ke layanan sedang terganggu. Silakan coba lagi sebentar lagi ya."
	case FailureSafety:
		return "Maaf, aku tidak bisa menjawab pertanyaan itu. Yuk kita lanjutkan pembahasan materi kimia hijau."
	default:
		return "Maaf, terjadi kendala saat menyiapkan jawaban. Silakan coba lagi ya."
	}
}
