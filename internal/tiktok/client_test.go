package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/tinlens/internal/model"
	"github.com/hitoshi/tinlens/internal/upstream"
)

func newTestClient(apiURL string) *Client {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	up := upstream.New(upstream.Config{Service: "tiktok"}, nil, nil, logger)
	return NewClient(apiURL, "key-1", up, logger)
}

func TestFetch_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/download" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("url"); got != "https://www.tiktok.com/@user/video/123" {
			t.Errorf("url query = %q", got)
		}
		if r.Header.Get("x-api-key") != "key-1" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		w.Write([]byte(`{
			"status": "success",
			"result": {
				"type": "video",
				"id": "123",
				"createTime": 1717400000,
				"desc": "Storm footage #weather #news",
				"author": {"nickname": "Storm Chaser", "username": "@chaser"},
				"statistics": {"playCount": 1500, "diggCount": "230", "commentCount": null, "shareCount": 0, "collectCount": "n/a"},
				"hashtag": ["weather", "news"],
				"videoSD": "https://cdn.example.com/sd.mp4",
				"video": {"playAddr": ["https://cdn.example.com/play.mp4"], "cover": ["https://cdn.example.com/cover.jpg"], "duration": 15}
			}
		}`))
	}))
	defer ts.Close()

	post, err := newTestClient(ts.URL).Fetch(context.Background(), "https://www.tiktok.com/@user/video/123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if post.DownloadURL() != "https://cdn.example.com/sd.mp4" {
		t.Errorf("DownloadURL() = %q, want SD when HD is missing", post.DownloadURL())
	}
	if post.CoverURL() != "https://cdn.example.com/cover.jpg" {
		t.Errorf("CoverURL() = %q", post.CoverURL())
	}
	if post.Author.Handle() != "chaser" {
		t.Errorf("Handle() = %q", post.Author.Handle())
	}
	if post.Video.Duration != 15 {
		t.Errorf("Duration = %v", post.Video.Duration)
	}
	if post.CreatedAt() == nil || post.CreatedAt().Year() != 2024 {
		t.Errorf("CreatedAt() = %v", post.CreatedAt())
	}

	stats := post.Stats()
	if stats.Plays == nil || *stats.Plays != 1500 {
		t.Errorf("Plays = %v", stats.Plays)
	}
	if stats.Likes == nil || *stats.Likes != 230 {
		t.Errorf("Likes = %v", stats.Likes)
	}
	if stats.Comments != nil || stats.Shares != nil || stats.Saves != nil {
		t.Errorf("zero or invalid counts should be nil: %+v", stats)
	}
}

func TestFetch_StatusNotSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"video not found"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Fetch(context.Background(), "https://www.tiktok.com/@user/video/1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestFetch_NotConfigured(t *testing.T) {
	_, err := newTestClient("").Fetch(context.Background(), "https://www.tiktok.com/@user/video/1")
	if !errors.Is(err, model.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestPost_DownloadURLPriority(t *testing.T) {
	tests := []struct {
		name string
		post Post
		want string
	}{
		{"HD優先", Post{VideoHD: "hd", VideoSD: "sd", Direct: "direct"}, "hd"},
		{"SD", Post{VideoSD: "sd", Direct: "direct"}, "sd"},
		{"直接リンク", Post{Direct: "direct", Video: VideoInfo{PlayAddr: []string{"play"}}}, "direct"},
		{"ダウンロードアドレス", Post{Video: VideoInfo{DownloadAddr: []string{"", "dl"}, PlayAddr: []string{"play"}}}, "dl"},
		{"ネイティブ再生アドレス", Post{Video: VideoInfo{PlayAddr: []string{"play"}}}, "play"},
		{"なし", Post{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.post.DownloadURL(); got != tt.want {
				t.Errorf("DownloadURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCount_Unmarshal(t *testing.T) {
	var s Statistics
	if err := json.Unmarshal([]byte(`{"playCount":"12.5","diggCount":7}`), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.PlayCount != 12.5 || s.DiggCount != 7 {
		t.Errorf("Statistics = %+v", s)
	}
}
