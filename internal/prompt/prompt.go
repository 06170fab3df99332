// Package prompt renders a metric snapshot into the analysis instruction
// sent to the model. Compile is pure: numeric fields are formatted to fixed
// decimal places before embedding, and derived ratios are computed here
// because the model is not trusted to do arithmetic.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sitepulse/insight-gateway/internal/snapshot"
)

// Caller-side truncation limits restated for the embedded lists.
const (
	promptTopPages       = 10
	promptTrafficSources = 5
)

// Compile renders the snapshot into the full analysis prompt, including the
// strict JSON output contract the model must follow.
func Compile(s *snapshot.Snapshot) string {
	mobilePct := 0.0
	for _, d := range s.DeviceBreakdown {
		if d.Device == "mobile" {
			mobilePct = d.Percentage
			break
		}
	}

	// Denominator clamped to 1 so a zero-session range cannot divide by zero.
	sessions := s.Sessions
	if sessions < 1 {
		sessions = 1
	}
	pagesPerSession := float64(s.PageViews) / float64(sessions)

	minutes := int(s.AvgSessionDuration) / 60
	seconds := int(s.AvgSessionDuration) % 60

	return fmt.Sprintf(template,
		s.Industry,
		s.PageViews,
		s.Users,
		s.Sessions,
		s.BounceRate,
		minutes, seconds,
		mobilePct,
		trafficDetails(s.TrafficSources),
		pageDetails(s.TopPages),
		s.BounceRate,
		s.AvgSessionDuration,
		pagesPerSession,
		s.Industry,
	)
}

// trafficDetails renders the top sources as "source(Nセッション)" entries.
func trafficDetails(sources []snapshot.Source) string {
	n := len(sources)
	if n > promptTrafficSources {
		n = promptTrafficSources
	}
	parts := make([]string, 0, n)
	for _, src := range sources[:n] {
		parts = append(parts, fmt.Sprintf("%s(%dセッション)", src.Source, src.Sessions))
	}
	return strings.Join(parts, ", ")
}

// pageDetails renders the top pages with both title and path, so the model
// can infer the site's purpose from either.
func pageDetails(pages []snapshot.Page) string {
	n := len(pages)
	if n > promptTopPages {
		n = promptTopPages
	}
	parts := make([]string, 0, n)
	for _, p := range pages[:n] {
		title := p.Title
		if title == "" {
			title = "(タイトルなし)"
		}
		parts = append(parts, fmt.Sprintf("「%s」(%s, %dPV)", title, p.Path, p.Views))
	}
	return strings.Join(parts, "\n  ")
}

const template = `あなたはウェブサイト分析の専門家です。以下のGA4データを分析し、サイトの特色を把握した上で改善提案と業界比較を提供してください。

## サイト基本情報
- 業種: %s
- PV（ページビュー）: %d
- ユーザー数: %d
- セッション数: %d
- 直帰率: %.1f%%
- 平均セッション時間: %d分%d秒
- モバイル比率: %.1f%%

## 流入元の内訳
%s

## 人気ページ（上位10件）
  %s

## 出力形式
以下のJSON形式で回答してください。日本語で記述してください。

{
  "siteOverview": {
    "siteType": "サイトの種類（例：企業サイト、メディア、ブログ、ECサイト、サービス紹介など）",
    "description": "人気ページのタイトルやURLパスから推測されるサイトの内容・目的を具体的に説明（120文字以内）",
    "targetAudience": "想定される主なターゲット層（例：IT企業の経営者、転職を考えているエンジニアなど。30文字以内）",
    "contentFocus": "主に扱っているコンテンツや情報（人気ページから判断。40文字以内）",
    "trafficCharacteristics": "流入元の特徴から読み取れること（例：検索流入が主力で情報発信型。40文字以内）"
  },
  "improvements": [
    {
      "title": "改善提案のタイトル（15文字以内）",
      "reason": "データに基づく根拠（例：直帰率が65%%で業界平均より15%%高い）",
      "action": "具体的にやるべきこと（例：トップページに人気記事3つへのリンクを追加する）",
      "priority": "high" | "medium" | "low",
      "icon": "📈" | "📱" | "🔍" | "⚡" | "🎯" | "💡"
    }
  ],
  "industryComparison": {
    "bounceRate": {
      "value": %.1f,
      "industryAvg": 業界平均値（数値）,
      "status": "good" | "average" | "needsWork"
    },
    "avgSessionDuration": {
      "value": %.0f,
      "industryAvg": 業界平均値（秒数）,
      "status": "good" | "average" | "needsWork"
    },
    "pagesPerSession": {
      "value": %.1f,
      "industryAvg": 業界平均値（数値）,
      "status": "good" | "average" | "needsWork"
    }
  },
  "priorityAction": {
    "title": "最優先で実行すべきアクションのタイトル（20文字以内）",
    "description": "具体的な説明と期待効果（100文字以内）",
    "impact": "高" | "中" | "低",
    "effort": "高" | "中" | "低"
  },
  "changeAlerts": [
    {
      "type": "increase" | "decrease",
      "metric": "変化が検出された指標名",
      "message": "変化の説明（50文字以内）"
    }
  ],
  "summary": "全体的な分析サマリー（100文字以内）"
}

## 重要な指示
- siteOverviewは人気ページのタイトルやURLパス、流入元から、このサイトが何のサイトか詳しく推測する
- ページタイトルに含まれるキーワード（例：「採用」「サービス」「ブログ」「料金」など）からサイトの目的を判断する
- URLパス（例：/blog/, /service/, /about/など）からもサイト構造を推測する
- improvementsは3〜5個。各提案には必ず「reason（数値を含む根拠）」と「action（具体的な作業内容）」を含める
- 専門用語は使わないか、使う場合は括弧内で簡単に説明する（例：CTR（クリック率）、CVR（成約率））
- actionは「〜を確認する」「〜を追加する」「〜を変更する」など、すぐ実行できる形で書く
- changeAlertsには、データから読み取れる注目すべき特徴を1〜2個含める
- priorityActionには、最も効果が高く実行しやすい改善アクションを1つ選ぶ
- 業界「%s」のベンチマークデータを参考にする`
