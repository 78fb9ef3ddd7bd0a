package resolver

import (
	"fmt"

	"github.com/xaenox/lingua-bot/internal/lang"
)

type systemMessage int

const (
	msgTooLong systemMessage = iota
	msgLearnEmpty
	msgLearnNoTarget
)

var systemMessages = map[systemMessage]map[string]string{
	msgTooLong: {
		lang.English: "Your message is too long. Please keep it under %d characters.",
		lang.Arabic:  "رسالتك طويلة جداً. يرجى الإبقاء عليها أقل من %d حرف.",
	},
	msgLearnEmpty: {
		lang.English: "Please provide a response to learn.",
		lang.Arabic:  "يرجى تقديم رد لأتعلمه.",
	},
	msgLearnNoTarget: {
		lang.English: "I couldn't find the message to correct.",
		lang.Arabic:  "لم أتمكن من العثور على الرسالة المراد تصحيحها.",
	},
}

func localize(msg systemMessage, language string, args ...interface{}) string {
	texts := systemMessages[msg]
	text, ok := texts[language]
	if !ok {
		text = texts[lang.English]
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}
