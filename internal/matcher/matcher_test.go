package matcher

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var vocabulary = []string{
	"Гречка",
	"Рис",
	"Молоко",
	"Масло сливочное",
	"Сахар",
	"Яйцо куриное",
	"Помидоры",
	"Огурцы",
	"Сыр",
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		cutoff float64
		want   float64
	}{
		{name: "explicit cutoff", cutoff: 0.6, want: 0.6},
		{name: "zero falls back", cutoff: 0, want: DefaultCutoff},
		{name: "negative falls back", cutoff: -1, want: DefaultCutoff},
		{name: "above one falls back", cutoff: 1.5, want: DefaultCutoff},
		{name: "exactly one", cutoff: 1, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(vocabulary, tt.cutoff)
			if diff := cmp.Diff(tt.want, m.Cutoff()); diff != "" {
				t.Errorf("cutoff mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(len(vocabulary), m.Len()); diff != "" {
				t.Errorf("len mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBestMatch(t *testing.T) {
	m := New(vocabulary, DefaultCutoff)

	tests := []struct {
		name      string
		candidate string
		want      Result
	}{
		{name: "exact", candidate: "Гречка", want: Result{Matched: true, Name: "Гречка", Score: 1}},
		{name: "case insensitive", candidate: "ГРЕЧКА", want: Result{Matched: true, Name: "Гречка", Score: 1}},
		{name: "two words exact", candidate: "масло сливочное", want: Result{Matched: true, Name: "Масло сливочное", Score: 1}},
		{name: "close spelling", candidate: "помидор", want: Result{Matched: true, Name: "Помидоры", Score: 14.0 / 15.0}},
		{name: "plural", candidate: "огурец", want: Result{Matched: true, Name: "Огурцы", Score: 10.0 / 12.0}},
		{name: "below cutoff", candidate: "сырок", want: Result{}},
		{name: "two words below cutoff", candidate: "гречка ядрица", want: Result{}},
		{name: "unrelated", candidate: "капуста", want: Result{}},
		{name: "empty", candidate: "", want: Result{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.BestMatch(tt.candidate)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("BestMatch(%q) mismatch (-want +got):\n%s", tt.candidate, diff)
			}
		})
	}
}

func TestBestMatchTieKeepsFirstEntry(t *testing.T) {
	tests := []struct {
		name       string
		vocabulary []string
		want       string
	}{
		{name: "kit first", vocabulary: []string{"кит", "кут"}, want: "кит"},
		{name: "kut first", vocabulary: []string{"кут", "кит"}, want: "кут"},
		{name: "same name different case", vocabulary: []string{"Яблоки", "яблоки"}, want: "Яблоки"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.vocabulary, 0.6)
			candidate := "кот"
			if tt.name == "same name different case" {
				candidate = "яблоки"
			}
			got := m.BestMatch(candidate)
			if diff := cmp.Diff(tt.want, got.Name); diff != "" {
				t.Errorf("tie winner mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	m := New(vocabulary, DefaultCutoff)

	tests := []struct {
		name        string
		productName string
		wantMatched bool
		wantName    string
	}{
		{name: "first word fallback", productName: "Гречка ядрица 900 г", wantMatched: true, wantName: "Гречка"},
		{name: "two words", productName: "Масло сливочное 82,5% 180 г", wantMatched: true, wantName: "Масло сливочное"},
		{name: "noise stripped before split", productName: "Помидоры черри 500 г", wantMatched: true, wantName: "Помидоры"},
		{name: "latin brand ignored", productName: "Ecomarket Сахар 1 кг", wantMatched: true, wantName: "Сахар"},
		{name: "single word", productName: "Огурцы", wantMatched: true, wantName: "Огурцы"},
		{name: "no match", productName: "Набор для пикника", wantMatched: false},
		{name: "no letters", productName: "12345 ABC", wantMatched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Match(tt.productName)
			if diff := cmp.Diff(tt.wantMatched, got.Matched); diff != "" {
				t.Errorf("matched mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantName, got.Name); diff != "" {
				t.Errorf("name mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBestMatchReturnsMemberAboveCutoff(t *testing.T) {
	candidates := []string{
		"гречка", "гречк", "рис", "риса", "молоко", "молок", "масло", "масло сливочно",
		"сахарок", "яйцо", "яйцо курино", "помидор", "огурец", "сырок", "сыр", "капуста", "",
	}
	members := make(map[string]bool, len(vocabulary))
	for _, v := range vocabulary {
		members[v] = true
	}

	for _, cutoff := range []float64{0.5, 0.8, 0.95} {
		m := New(vocabulary, cutoff)
		for _, c := range candidates {
			got := m.BestMatch(c)
			if !got.Matched {
				for _, v := range vocabulary {
					if s := Similarity(v, c); s >= cutoff {
						t.Errorf("cutoff %.2f: %q unmatched but %q scores %.3f", cutoff, c, v, s)
					}
				}
				continue
			}
			if !members[got.Name] {
				t.Errorf("cutoff %.2f: %q matched non-member %q", cutoff, c, got.Name)
			}
			if got.Score < cutoff {
				t.Errorf("cutoff %.2f: %q matched %q below cutoff (%.3f)", cutoff, c, got.Name, got.Score)
			}
			for _, v := range vocabulary {
				if s := Similarity(v, c); s > got.Score {
					t.Errorf("cutoff %.2f: %q matched %q (%.3f) but %q scores %.3f", cutoff, c, got.Name, got.Score, v, s)
				}
			}
		}
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Молоко 3,2% Простоквашино", want: "Молоко  Простоквашино"},
		{in: "Ёжевика (замороженная)", want: "Ёжевика замороженная"},
		{in: "Tomato 500g", want: " "},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Clean(tt.in)); diff != "" {
			t.Errorf("Clean(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
