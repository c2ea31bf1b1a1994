package telegram

import (
	"fmt"
)

// FormatPredictionAlertForTelegram formats a prediction alert into a Markdown
// string for Telegram delivery.
func FormatPredictionAlertForTelegram(predictedValue float64, clockTime string) string {
	return fmt.Sprintf("🚀 *JetPredict Alert*\n\n🎯 Predicted *%.2fx* at *%s*\n⏱ Round starts in ~30 seconds, get ready!", predictedValue, clockTime)
}
