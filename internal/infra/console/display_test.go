package console_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"voice-chat/internal/infra/console"
)

func TestDisplay_Conversation(t *testing.T) {
	var buf bytes.Buffer
	d := console.NewDisplay(&buf, false)

	d.Partial("hel")
	d.Utterance("hello")
	d.Response("hi there")
	d.Failure(errors.New("response call failed"))

	want := "You said: hello\nChatBot: hi there\nError: response call failed\n"
	if got := buf.String(); got != want {
		t.Errorf("output:\ngot  %q\nwant %q", got, want)
	}
}

func TestDisplay_Partials(t *testing.T) {
	var buf bytes.Buffer
	d := console.NewDisplay(&buf, true)

	d.Partial("hel")
	if !strings.Contains(buf.String(), "hel") {
		t.Errorf("partial not shown: %q", buf.String())
	}
}
