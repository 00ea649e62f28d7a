package telegram

import (
	"fmt"
	"strings"

	aidetect "github.com/anatolykoptev/go-aidetect"
)

var levelIcons = map[aidetect.DetectionLevel]string{
	aidetect.LevelObviousAI:  "🤖",
	aidetect.LevelSuspicious: "⚠️",
	aidetect.LevelUncertain:  "❔",
	aidetect.LevelLikelyReal: "✅",
}

// FormatReply renders a result (and optional ML verdict) as a chat message.
func FormatReply(res *aidetect.AnalysisResult, verdict *aidetect.Verdict) string {
	if !res.OK() {
		if res != nil && res.Err != nil && res.Err.Kind == aidetect.ErrorValidation {
			return "🚫 " + res.Err.Message
		}
		return "⚠️ Analysis failed. Please try another image."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s (score %.2f)\n", levelIcons[res.DetectionLevel], res.DetectionLevel, res.PrefilterScore)
	sb.WriteString(res.Recommendation)
	sb.WriteString("\n")

	if len(res.Warnings) > 0 {
		sb.WriteString("\nFindings:\n")
		for _, w := range res.Warnings {
			sb.WriteString("• ")
			sb.WriteString(w)
			sb.WriteString("\n")
		}
	}

	if verdict != nil && verdict.Verified && verdict.MLScore != nil {
		label := "likely authentic"
		if verdict.IsAI {
			label = "likely AI-generated"
		}
		fmt.Fprintf(&sb, "\nML check: %.2f, combined %.2f → %s\n", *verdict.MLScore, verdict.FinalScore, label)
	} else if res.NeedsMLVerification {
		sb.WriteString("\nML verification recommended.\n")
	}

	fmt.Fprintf(&sb, "\n%dx%d %s, %.1f KB", res.Dimensions.Width, res.Dimensions.Height,
		strings.ToUpper(res.Format), res.FileSizeKB)
	return sb.String()
}
