// Package flow holds the static definition of the Ecombot learning journey:
// an ordered graph of activity nodes (intro → topic explainer → seven
// exploration activities → closing), each optionally carrying scripted
// questions, plus a keyword navigation table. The table is immutable after
// process start; the session engine only reads it. Keeping the narrative
// graph out of the engine means content edits never touch orchestration code.
package flow

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Question describes one scripted question embedded in an activity node.
type Question struct {
	ID         string
	Prompt     string
	Type       string // essay | discussion | challenge | creative | reflective
	Required   bool
	StorageKey string
	MaxLen     int
	AllowImage bool
}

// Node is one activity in the learning flow.
type Node struct {
	ID        string
	Title     string
	Narrative string
	MediaRef  string
	Questions []Question
	// Next lists the activity ids reachable from this node through the
	// navigation table (the discussion forum is implicitly reachable from
	// every node and is not repeated here).
	Next []string
}

// ForumID is the side-branch discussion pseudo-activity. It is reachable from
// every node and returns to the node it was entered from.
const ForumID = "forum_diskusi"

// EntryID is the flow's entry node, used when StartSession omits an activity.
const EntryID = "pendahuluan"

// nodes is the immutable activity table, in journey order.
var nodes = []Node{
	{
		ID:        "pendahuluan",
		Title:     "Pendahuluan",
		Narrative: "Halo! Aku Ecombot, teman belajarmu di GreenVerse. Kita akan menjelajahi kimia hijau lewat cerita dan kegiatan seru. Ketik 'mulai' kalau kamu siap!",
		Next:      []string{"kimia_hijau"},
	},
	{
		ID:        "kimia_hijau",
		Title:     "Mengenal Kimia Hijau",
		Narrative: "Kimia hijau adalah pendekatan merancang produk dan proses kimia yang mengurangi atau menghilangkan zat berbahaya. Dua belas prinsipnya memandu kita memakai bahan yang lebih aman dan hemat energi.",
		MediaRef:  "comics/greenverse/episode-1",
		Next:      []string{"kegiatan_1"},
	},
	{
		ID:        "kegiatan_1",
		Title:     "Kegiatan 1: Amati Sekitarmu",
		Narrative: "Perhatikan lingkungan sekitarmu. Produk apa saja yang menurutmu dibuat dengan proses ramah lingkungan?",
		Questions: []Question{{
			ID:         "q_kegiatan_1",
			Prompt:     "Tuliskan tiga contoh produk ramah lingkungan yang kamu temukan, dan jelaskan alasanmu.",
			Type:       "essay",
			Required:   true,
			StorageKey: "answer:kegiatan_1",
			MaxLen:     2000,
		}},
		Next: []string{"kegiatan_2"},
	},
	{
		ID:        "kegiatan_2",
		Title:     "Kegiatan 2: Diskusi Prinsip",
		Narrative: "Dari dua belas prinsip kimia hijau, prinsip mana yang paling mudah kamu terapkan sehari-hari?",
		Questions: []Question{{
			ID:         "q_kegiatan_2",
			Prompt:     "Pilih satu prinsip kimia hijau dan diskusikan bagaimana kamu menerapkannya di rumah.",
			Type:       "discussion",
			Required:   true,
			StorageKey: "answer:kegiatan_2",
			MaxLen:     2000,
		}},
		Next: []string{"kegiatan_3"},
	},
	{
		ID:        "kegiatan_3",
		Title:     "Kegiatan 3: Tantangan Daur Ulang",
		Narrative: "Saatnya tantangan! Rancang cara memanfaatkan kembali satu barang bekas di rumahmu.",
		Questions: []Question{{
			ID:         "q_kegiatan_3",
			Prompt:     "Jelaskan rancanganmu: barang apa yang dipakai ulang dan bagaimana caranya.",
			Type:       "challenge",
			Required:   true,
			StorageKey: "answer:kegiatan_3",
			MaxLen:     2000,
			AllowImage: true,
		}},
		Next: []string{"kegiatan_4"},
	},
	{
		ID:        "kegiatan_4",
		Title:     "Kegiatan 4: Eksperimen Sederhana",
		Narrative: "Coba eksperimen membuat pembersih alami dari bahan dapur, lalu catat hasil pengamatanmu.",
		Questions: []Question{{
			ID:         "q_kegiatan_4",
			Prompt:     "Catat bahan yang kamu pakai dan apa yang terjadi selama eksperimen.",
			Type:       "essay",
			Required:   true,
			StorageKey: "answer:kegiatan_4",
			MaxLen:     2000,
			AllowImage: true,
		}},
		Next: []string{"kegiatan_5"},
	},
	{
		ID:        "kegiatan_5",
		Title:     "Kegiatan 5: Poster Kampanye",
		Narrative: "Buat poster atau slogan kampanye kimia hijau untuk teman-temanmu.",
		Questions: []Question{{
			ID:         "q_kegiatan_5",
			Prompt:     "Tuliskan slogan kampanyemu dan pesan yang ingin kamu sampaikan.",
			Type:       "creative",
			Required:   true,
			StorageKey: "answer:kegiatan_5",
			MaxLen:     1000,
			AllowImage: true,
		}},
		Next: []string{"kegiatan_6"},
	},
	{
		ID:        "kegiatan_6",
		Title:     "Kegiatan 6: Studi Kasus",
		Narrative: "Sebuah pabrik mengganti pelarut berbahaya dengan air. Apa dampaknya bagi pekerja dan lingkungan?",
		Questions: []Question{{
			ID:         "q_kegiatan_6",
			Prompt:     "Analisis dampak penggantian pelarut tersebut dari sisi keselamatan dan lingkungan.",
			Type:       "essay",
			Required:   true,
			StorageKey: "answer:kegiatan_6",
			MaxLen:     3000,
		}},
		Next: []string{"kegiatan_7"},
	},
	{
		ID:        "kegiatan_7",
		Title:     "Kegiatan 7: Refleksi",
		Narrative: "Perjalanan kita hampir selesai. Apa hal terpenting yang kamu pelajari tentang kimia hijau?",
		Questions: []Question{{
			ID:         "q_kegiatan_7",
			Prompt:     "Tuliskan refleksimu: apa yang berubah dari caramu memandang bahan kimia sehari-hari?",
			Type:       "reflective",
			Required:   true,
			StorageKey: "answer:kegiatan_7",
			MaxLen:     2000,
		}},
		Next: []string{"penutup"},
	},
	{
		ID:        "penutup",
		Title:     "Penutup",
		Narrative: "Selamat! Kamu sudah menyelesaikan seluruh kegiatan GreenVerse. Terus terapkan kimia hijau di kehidupanmu, ya!",
	},
	{
		ID:        ForumID,
		Title:     "Forum Diskusi",
		Narrative: "Selamat datang di forum diskusi. Sampaikan pendapatmu, lalu ketik 'kembali' untuk melanjutkan kegiatanmu.",
		Questions: []Question{{
			ID:         "q_forum",
			Prompt:     "Bagikan pendapatmu di forum diskusi.",
			Type:       "discussion",
			StorageKey: "answer:forum",
			MaxLen:     2000,
		}},
	},
}

// byID indexes nodes for O(1) lookup. Built once at init.
var byID = func() map[string]Node {
	m := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}()

// transitions maps (current activity, recognized keyword) → next activity.
// Keywords are matched case-insensitively and exactly; there is no fuzzy
// matching. The forum branch is handled separately (see Navigate).
var transitions = map[string]map[string]string{
	"pendahuluan": {"mulai": "kimia_hijau", "lanjut": "kimia_hijau"},
	"kimia_hijau": {"lanjut": "kegiatan_1"},
	"kegiatan_1":  {"lanjut": "kegiatan_2"},
	"kegiatan_2":  {"lanjut": "kegiatan_3"},
	"kegiatan_3":  {"lanjut": "kegiatan_4"},
	"kegiatan_4":  {"lanjut": "kegiatan_5"},
	"kegiatan_5":  {"lanjut": "kegiatan_6"},
	"kegiatan_6":  {"lanjut": "kegiatan_7"},
	"kegiatan_7":  {"lanjut": "penutup", "selesai": "penutup"},
}

// Get returns the node for id, case-insensitively. The second return value
// reports whether the activity exists.
func Get(id string) (Node, bool) {
	n, ok := byID[strings.ToLower(strings.TrimSpace(id))]
	return n, ok
}

// Valid reports whether id names a known activity (including the forum).
func Valid(id string) bool {
	_, ok := Get(id)
	return ok
}

// All returns the activity nodes in journey order. The forum pseudo-activity
// is excluded: it is a side branch, not a step of the journey.
func All() []Node {
	out := make([]Node, 0, len(nodes)-1)
	for _, n := range nodes {
		if n.ID == ForumID {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Navigate resolves the next activity for a keyword typed at current.
//
// Rules, in order:
//   - "forum" from any node enters the discussion forum.
//   - "kembali" inside the forum returns to returnTo (the node the forum was
//     entered from); outside the forum it is not a recognized transition.
//   - otherwise the (current, keyword) pair is looked up in the static table.
//
// The keyword match is case-insensitive and exact. The boolean reports
// whether a transition was found.
func Navigate(current, keyword, returnTo string) (string, bool) {
	cur := strings.ToLower(strings.TrimSpace(current))
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return "", false
	}
	if kw == "forum" && Valid(cur) {
		return ForumID, true
	}
	if cur == ForumID && kw == "kembali" {
		if Valid(returnTo) && returnTo != ForumID {
			return strings.ToLower(strings.TrimSpace(returnTo)), true
		}
		return EntryID, true
	}
	next, ok := transitions[cur][kw]
	return next, ok
}

// titleCaser renders display titles in Indonesian casing rules.
var titleCaser = cases.Title(language.Indonesian)

// TitleFor returns the display title for an activity id. Known activities use
// their authored title; anything else gets a readable fallback derived from
// the id ("kegiatan_bonus" becomes "Kegiatan Bonus").
func TitleFor(id string) string {
	if n, ok := Get(id); ok {
		return n.Title
	}
	words := strings.FieldsFunc(strings.TrimSpace(id), func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(words) == 0 {
		return ""
	}
	return titleCaser.String(strings.Join(words, " "))
}

// QuestionByID finds a question descriptor anywhere in the flow.
func QuestionByID(questionID string) (Question, bool) {
	for _, n := range nodes {
		for _, q := range n.Questions {
			if q.ID == questionID {
				return q, true
			}
		}
	}
	return Question{}, false
}
