package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/voice-agent/backend/internal/model/speech"
)

func TestSynthesisResponseLocationPrecedence(t *testing.T) {
	cases := []struct {
		resp speech.SynthesisResponse
		want string
	}{
		{speech.SynthesisResponse{AudioFile: "a", AudioURL: "b", URL: "c"}, "a"},
		{speech.SynthesisResponse{AudioURL: "b", URL: "c"}, "b"},
		{speech.SynthesisResponse{URL: "c"}, "c"},
		{speech.SynthesisResponse{}, ""},
	}
	for _, tc := range cases {
		if got := tc.resp.Location(); got != tc.want {
			t.Fatalf("Location(%+v) = %q, want %q", tc.resp, got, tc.want)
		}
	}
}

type fakeMurf struct {
	t            *testing.T
	generateCode int
	downloadCode int
	omitURL      bool
	lastRequest  speech.SynthesisRequest
	audio        []byte
	srv          *httptest.Server
}

func newFakeMurf(t *testing.T) *fakeMurf {
	f := &fakeMurf{t: t, audio: []byte("mp3-bytes")}
	f.srv = httptest.NewServer(f)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeMurf) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/speech/generate":
		if r.Header.Get("api-key") != "tts-key" {
			f.t.Errorf("missing api-key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&f.lastRequest); err != nil {
			f.t.Errorf("decode generate body: %v", err)
		}
		if f.generateCode != 0 {
			w.WriteHeader(f.generateCode)
			return
		}
		resp := map[string]string{"audioFile": f.srv.URL + "/files/out.mp3"}
		if f.omitURL {
			resp = map[string]string{}
		}
		_ = json.NewEncoder(w).Encode(resp)
	case "/files/out.mp3":
		if f.downloadCode != 0 {
			w.WriteHeader(f.downloadCode)
			return
		}
		_, _ = w.Write(f.audio)
	case "/v1/speech/voices":
		if f.generateCode != 0 {
			w.WriteHeader(f.generateCode)
			_, _ = w.Write([]byte("quota exceeded"))
			return
		}
		_, _ = w.Write([]byte(`[{"voiceId":"en-US-ken"}]`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeMurf) client() *MurfClient {
	return NewMurfClient(speech.SynthesizerConfig{
		APIKey:      "tts-key",
		BaseURL:     f.srv.URL,
		Timeout:     time.Second,
		SampleRate:  24000,
		ChannelType: "STEREO",
	}, f.srv.Client())
}

func TestMurfSynthesize(t *testing.T) {
	fake := newFakeMurf(t)

	data, err := fake.client().Synthesize(context.Background(), "hello", "en-US-ken")
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Fatalf("unexpected audio %q", data)
	}

	want := speech.SynthesisRequest{Text: "hello", VoiceID: "en-US-ken", Format: "MP3", SampleRate: 24000, ChannelType: "STEREO"}
	if fake.lastRequest != want {
		t.Fatalf("unexpected payload %+v", fake.lastRequest)
	}
}

func TestMurfRequestAudioURL(t *testing.T) {
	fake := newFakeMurf(t)

	url, err := fake.client().RequestAudioURL(context.Background(), "hello", "en-us-natalie")
	if err != nil {
		t.Fatalf("RequestAudioURL err: %v", err)
	}
	if url != fake.srv.URL+"/files/out.mp3" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestMurfFailures(t *testing.T) {
	t.Run("generate non-200", func(t *testing.T) {
		fake := newFakeMurf(t)
		fake.generateCode = http.StatusBadRequest
		_, err := fake.client().Synthesize(context.Background(), "hi", "v")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.Op != "generate" {
			t.Fatalf("expected generate StatusError, got %v", err)
		}
	})

	t.Run("missing url", func(t *testing.T) {
		fake := newFakeMurf(t)
		fake.omitURL = true
		if _, err := fake.client().Synthesize(context.Background(), "hi", "v"); !errors.Is(err, ErrNoAudioURL) {
			t.Fatalf("expected ErrNoAudioURL, got %v", err)
		}
	})

	t.Run("download non-200", func(t *testing.T) {
		fake := newFakeMurf(t)
		fake.downloadCode = http.StatusForbidden
		_, err := fake.client().Synthesize(context.Background(), "hi", "v")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.Op != "download" {
			t.Fatalf("expected download StatusError, got %v", err)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		fake := newFakeMurf(t)
		if _, err := fake.client().Synthesize(context.Background(), "  ", "v"); !errors.Is(err, ErrNothingToSpeak) {
			t.Fatalf("expected ErrNothingToSpeak, got %v", err)
		}
	})
}

func TestMurfListVoices(t *testing.T) {
	fake := newFakeMurf(t)

	voices, err := fake.client().ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices err: %v", err)
	}
	if string(voices) != `[{"voiceId":"en-US-ken"}]` {
		t.Fatalf("unexpected voices %s", voices)
	}

	fake.generateCode = http.StatusTooManyRequests
	_, err = fake.client().ListVoices(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Body != "quota exceeded" {
		t.Fatalf("expected StatusError with body, got %v", err)
	}
}
