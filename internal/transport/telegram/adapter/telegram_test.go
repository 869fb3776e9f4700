package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "gatebot/internal/transport"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello\nworld", 100, "")
	if len(got) != 1 || got[0] != "hello\nworld" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(in, 10, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextKeepsEveryRune(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("ж", 25)
	got := splitText(in, 10, "")
	if len(got) != 3 {
		t.Fatalf("parts = %d, want 3", len(got))
	}
	if strings.Join(got, "") != in {
		t.Fatalf("joined parts differ from input")
	}
}

func TestSplitTextAvoidsOpenTag(t *testing.T) {
	t.Parallel()
	in := "abcdefg<b>bold</b>"
	got := splitText(in, 9, "HTML")
	if got[0] != "abcdefg" {
		t.Fatalf("first part = %q, want the text before the tag", got[0])
	}
	if strings.Join(got, "") != in {
		t.Fatalf("joined parts = %q", strings.Join(got, ""))
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Fatalf("truncateRunes = %q", got)
	}
	if got := truncateRunes("hi", 10); got != "hi" {
		t.Fatalf("truncateRunes = %q", got)
	}
}

func TestMenuCommandsLimits(t *testing.T) {
	t.Parallel()
	in := []kit.BotCommand{
		{Command: "", Description: "skipped"},
		{Command: "start"},
		{Command: "long", Description: strings.Repeat("x", 300)},
	}
	got := menuCommands(in)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Text != "start" || got[0].Description != "start" {
		t.Fatalf("got[0] = %+v", got[0])
	}
	if n := len(got[1].Description); n != 256 {
		t.Fatalf("description length = %d, want 256", n)
	}
	if menuHash(got) == menuHash(got[:1]) {
		t.Fatalf("hash ignores entries")
	}
}

func TestUserOf(t *testing.T) {
	t.Parallel()
	u := userOf(&tele.User{ID: 7, Username: "ann", FirstName: "Ann", LastName: "Lee"})
	if u.ID != 7 || u.DisplayName() != "Ann Lee" || u.Username != "ann" {
		t.Fatalf("userOf = %+v", u)
	}
	if userOf(nil).ID != 0 {
		t.Fatalf("userOf(nil) should be zero")
	}
}
