package tokenizer

import "testing"

func TestWordsCount(t *testing.T) {
	cases := map[string]int{
		"":                    0,
		"gm":                  1,
		"  wen   moon  ser ":  3,
		"line one\nline\ttwo": 4,
	}
	for text, want := range cases {
		if got := (Words{}).Count(text); got != want {
			t.Fatalf("Count(%q) = %d, ожидали %d", text, got, want)
		}
	}
}

func TestTiktokenOffline(t *testing.T) {
	tok, err := NewTiktoken("cl100k_base")
	if err != nil {
		t.Fatalf("кодировка должна загружаться без сети: %v", err)
	}
	payload := `[{"date":"2024-10-15 09:30","user":"@alice","message":"gm gm wen moon"}]`
	got := tok.Count(payload)
	words := (Words{}).Count(payload)
	if got <= words {
		t.Fatalf("tiktoken насчитал %d токенов, не больше слов (%d)", got, words)
	}
	if tok.Count("hello world") != 2 {
		t.Fatalf("hello world в cl100k_base — два токена, получили %d", tok.Count("hello world"))
	}
}

func TestTiktokenUnknownEncoding(t *testing.T) {
	if _, err := NewTiktoken("no_such_encoding"); err == nil {
		t.Fatalf("ожидали ошибку для неизвестной кодировки")
	}
}
