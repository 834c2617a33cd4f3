package rag

import (
	"strings"
)

// HistoryTurn is one prior exchange included in the prompt for continuity.
type HistoryTurn struct {
	Role string
	Text string
}

// DefaultHistoryLimit caps how many prior turns are folded into the prompt.
const DefaultHistoryLimit = 6

const systemInstruction = `Kamu adalah Ecombot, asisten belajar kimia hijau untuk siswa SMA di Indonesia.
Jawablah selalu dalam bahasa Indonesia yang ramah, jelas, dan mudah dipahami siswa.
Gunakan informasi pada bagian KONTEKS sebagai sumber utama jawaban.
Jika konteks tidak memuat jawabannya, katakan dengan jujur bahwa kamu belum punya informasinya, lalu ajak siswa kembali ke materi.
Jangan mengarang fakta dan jangan keluar dari topik pembelajaran.`

const noContextMarker = `(Tidak ada konteks materi yang tersedia untuk pertanyaan ini. Jawablah secara umum sesuai pengetahuanmu tentang kimia hijau, dan sampaikan bahwa materi pendukung sedang tidak tersedia.)`

// ComposePrompt builds the full generation prompt: system instruction, the
// retrieved context block (or an explicit unavailable marker), the most
// recent history turns, then the question. History beyond limit is dropped
// from the front so the newest turns survive.
func ComposePrompt(question string, snippets []Snippet, history []HistoryTurn, limit int) string {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\n\nKONTEKS:\n")
	if len(snippets) == 0 {
		b.WriteString(noContextMarker)
		b.WriteString("\n")
	} else {
		for i, s := range snippets {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(s.Content))
			b.WriteString("\n")
		}
	}

	if len(history) > 0 {
		b.WriteString("\nPERCAKAPAN SEBELUMNYA:\n")
		for _, h := range history {
			label := "Siswa"
			if h.Role == "assistant" {
				label = "Ecombot"
			}
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(strings.TrimSpace(h.Text))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nPERTANYAAN SISWA:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nJAWABAN:")
	return b.String()
}
