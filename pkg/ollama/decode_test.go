package ollama

import "testing"

func TestDecodeLineChatContent(t *testing.T) {
	ev := DecodeLine([]byte(`{"message":{"role":"assistant","content":"Guten "},"done":false}`))
	if ev.Skip {
		t.Fatal("unexpected skip")
	}
	if ev.Text != "Guten " {
		t.Errorf("expected partial text, got %q", ev.Text)
	}
	if ev.Done {
		t.Error("unexpected done")
	}
}

func TestDecodeLineFlatResponse(t *testing.T) {
	ev := DecodeLine([]byte(`{"response":"Tag!","done":false}`))
	if ev.Text != "Tag!" {
		t.Errorf("expected flat response text, got %q", ev.Text)
	}
}

func TestDecodeLineEmpty(t *testing.T) {
	for _, line := range []string{"", "   ", "\n", "\t\r\n"} {
		if ev := DecodeLine([]byte(line)); !ev.Skip {
			t.Errorf("expected skip for %q, got %+v", line, ev)
		}
	}
}

func TestDecodeLineMalformed(t *testing.T) {
	ev := DecodeLine([]byte(`{"message": not json`))
	if !ev.Skip {
		t.Errorf("expected skip for malformed line, got %+v", ev)
	}
	if ev.Text != "" || ev.Done {
		t.Error("skip event must carry nothing")
	}
}

func TestDecodeLineDone(t *testing.T) {
	ev := DecodeLine([]byte(`{"done":true}`))
	if !ev.Done {
		t.Error("expected done")
	}
	if ev.Text != "" {
		t.Errorf("expected no text, got %q", ev.Text)
	}
}

func TestDecodeLineDoneWithTrailingText(t *testing.T) {
	ev := DecodeLine([]byte(`{"message":{"content":"!"},"done":true}`))
	if ev.Text != "!" {
		t.Errorf("expected trailing text, got %q", ev.Text)
	}
	if !ev.Done {
		t.Error("expected done alongside text")
	}
}
