package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sitepulse/insight-gateway/internal/snapshot"
)

func sampleSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		PageViews:          500,
		Users:              200,
		Sessions:           100,
		BounceRate:         55.0,
		AvgSessionDuration: 130,
		TopPages: []snapshot.Page{
			{Path: "/blog/go", Title: "Goの始め方", Views: 120},
			{Path: "/about", Title: "", Views: 80},
		},
		TrafficSources: []snapshot.Source{
			{Source: "google", Sessions: 60},
			{Source: "(direct)", Sessions: 40},
		},
		DeviceBreakdown: []snapshot.Device{
			{Device: "mobile", Percentage: 70.0},
			{Device: "desktop", Percentage: 30.0},
		},
		Industry: "メディア",
	}
}

func TestCompileDeterministic(t *testing.T) {
	s := sampleSnapshot()
	if Compile(s) != Compile(s) {
		t.Error("Compile() is not deterministic for identical snapshots")
	}
}

func TestCompileEmbedsFormattedMetrics(t *testing.T) {
	p := Compile(sampleSnapshot())

	for _, want := range []string{
		"- 業種: メディア",
		"- PV（ページビュー）: 500",
		"- ユーザー数: 200",
		"- セッション数: 100",
		"- 直帰率: 55.0%",
		"- 平均セッション時間: 2分10秒",
		"- モバイル比率: 70.0%",
		`"value": 55.0,`, // bounce rate
		`"value": 130,`,  // avg session duration, whole seconds
		`"value": 5.0,`,  // pages per session: 500 views / 100 sessions
		"google(60セッション), (direct)(40セッション)",
		"「Goの始め方」(/blog/go, 120PV)",
		"「(タイトルなし)」(/about, 80PV)",
		"業界「メディア」のベンチマークデータを参考にする",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt is missing %q", want)
		}
	}
}

func TestCompileZeroSessions(t *testing.T) {
	s := sampleSnapshot()
	s.PageViews = 50
	s.Sessions = 0

	p := Compile(s)
	// Denominator is clamped, not divided through zero.
	if !strings.Contains(p, `"value": 50.0,`) {
		t.Errorf("pages per session with zero sessions: prompt = %q", p)
	}
}

func TestCompileNoMobileDevice(t *testing.T) {
	s := sampleSnapshot()
	s.DeviceBreakdown = []snapshot.Device{{Device: "desktop", Percentage: 100}}

	if !strings.Contains(Compile(s), "- モバイル比率: 0.0%") {
		t.Error("missing zero mobile share when no mobile sessions were reported")
	}
}

func TestCompileTruncatesSourcesToFive(t *testing.T) {
	s := sampleSnapshot()
	s.TrafficSources = nil
	for i := 0; i < 8; i++ {
		s.TrafficSources = append(s.TrafficSources, snapshot.Source{
			Source:   fmt.Sprintf("source-%d", i),
			Sessions: 100 - i,
		})
	}

	p := Compile(s)
	if !strings.Contains(p, "source-4(96セッション)") {
		t.Error("fifth source is missing")
	}
	if strings.Contains(p, "source-5") {
		t.Error("sixth source should have been truncated")
	}
}
