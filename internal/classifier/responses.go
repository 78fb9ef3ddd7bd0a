package classifier

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/lingua-bot/internal/lang"
)

// Candidates are the canned replies of one intent, split by language.
type Candidates struct {
	English []string
	Arabic  []string
}

func (c Candidates) forLanguage(language string) []string {
	if language == lang.Arabic {
		return c.Arabic
	}
	return c.English
}

func (c Candidates) last() (string, bool) {
	if n := len(c.Arabic); n > 0 {
		return c.Arabic[n-1], true
	}
	if n := len(c.English); n > 0 {
		return c.English[n-1], true
	}
	return "", false
}

// ResponseTable picks canned replies. Candidates may contain the {time} and
// {date} placeholders, expanded when picked.
type ResponseTable struct {
	entries map[string]Candidates

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewResponseTable(entries map[string]Candidates, seed int64) *ResponseTable {
	return &ResponseTable{
		entries: entries,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

func NewDefaultResponseTable() *ResponseTable {
	return NewResponseTable(DefaultResponses, time.Now().UnixNano())
}

// Pick returns a uniformly random candidate of intent in language. When the
// intent has nothing in that language the last candidate overall is used.
func (t *ResponseTable) Pick(intent, language string, now time.Time) (string, bool) {
	c, ok := t.entries[intent]
	if !ok {
		return "", false
	}

	options := c.forLanguage(language)
	var reply string
	if len(options) == 0 {
		if reply, ok = c.last(); !ok {
			return "", false
		}
	} else {
		t.mu.Lock()
		reply = options[t.rnd.Intn(len(options))]
		t.mu.Unlock()
	}

	return expand(reply, now), true
}

// Candidates returns the configured replies of intent in language, unexpanded.
func (t *ResponseTable) Candidates(intent, language string) []string {
	return t.entries[intent].forLanguage(language)
}

func expand(reply string, now time.Time) string {
	if !strings.Contains(reply, "{") {
		return reply
	}
	return strings.NewReplacer(
		"{time}", now.Format("15:04:05"),
		"{date}", now.Format("2006-01-02"),
	).Replace(reply)
}

var DefaultResponses = map[string]Candidates{
	IntentGreeting: {
		English: []string{"Hello! How can I help you today?", "Hi there! What can I do for you?"},
		Arabic:  []string{"مرحباً! كيف يمكنني مساعدتك اليوم؟", "أهلاً! ماذا يمكنني أن أفعل لك؟"},
	},
	IntentFarewell: {
		English: []string{"Goodbye! Have a nice day!", "See you later!"},
		Arabic:  []string{"وداعاً! أتمنى لك يوماً سعيداً!", "إلى اللقاء!"},
	},
	IntentThanks: {
		English: []string{"You're welcome!", "Happy to help!"},
		Arabic:  []string{"لا شكر على واجب!", "سعيد بالمساعدة!"},
	},
	IntentUnknown: {
		English: []string{
			"I'm not sure I understand. Can you rephrase that? If my response wasn't helpful, you can teach me by saying 'Learn: [correct response]'",
			"Hmm, I'm not sure about that. Can you try asking differently? You can teach me by saying 'Learn: [correct response]'",
		},
		Arabic: []string{
			"لست متأكداً من فهمي. هل يمكنك إعادة صياغة ذلك؟ إذا لم تكن إجابتي مفيدة، يمكنك تعليمي بقول 'تعلم: [الرد الصحيح]'",
			"همم، لست متأكداً من ذلك. هل يمكنك المحاولة بطريقة مختلفة؟ يمكنك تعليمي بقول 'تعلم: [الرد الصحيح]'",
		},
	},
	IntentBot: {
		English: []string{
			"I'm a simple bilingual chatbot. I learn from our conversations and use a generative model for harder questions.",
			"I'm a chatbot designed to improve over time by learning from interactions, with a generative model for complex questions.",
		},
		Arabic: []string{
			"أنا روبوت محادثة بسيط ثنائي اللغة. أتعلم من محادثاتنا وأستخدم نموذجاً توليدياً للأسئلة الأصعب.",
			"أنا روبوت محادثة مصمم للتحسن مع مرور الوقت من خلال التعلم من التفاعلات، مع نموذج توليدي للأسئلة المعقدة.",
		},
	},
	IntentCapabilities: {
		English: []string{
			"I can chat with you in English and Arabic, answer simple questions, and use a generative model for more complex ones. I also learn from our interactions!",
			"I'm a bilingual chatbot that understands English and Arabic. I can hand harder questions to a generative model, and I learn from our chats.",
		},
		Arabic: []string{
			"يمكنني التحدث معك باللغتين الإنجليزية والعربية والإجابة على الأسئلة البسيطة واستخدام نموذج توليدي للأسئلة الأكثر تعقيدًا. كما يمكنني التعلم من تفاعلاتنا!",
			"أنا روبوت محادثة ثنائي اللغة يفهم الإنجليزية والعربية. يمكنني تحويل الأسئلة الأصعب إلى نموذج توليدي، وأتعلم من محادثاتنا.",
		},
	},
	IntentWeather: {
		English: []string{"I'm sorry, I don't have access to real-time weather data. You would need to connect to a weather API for that feature."},
		Arabic:  []string{"أنا آسف، ليس لدي وصول إلى بيانات الطقس في الوقت الفعلي. ستحتاج إلى الاتصال بواجهة برمجة تطبيقات الطقس لهذه الميزة."},
	},
	IntentTime: {
		English: []string{"The current server time is {time}"},
		Arabic:  []string{"الوقت الحالي للخادم هو {time}"},
	},
	IntentDate: {
		English: []string{"Today is {date}"},
		Arabic:  []string{"اليوم هو {date}"},
	},
	IntentName: {
		English: []string{"My name is ChatBot. What's yours?", "I'm ChatBot, your AI assistant."},
		Arabic:  []string{"اسمي ChatBot. ما هو اسمك؟", "أنا ChatBot، مساعدك الذكي."},
	},
	IntentHelp: {
		English: []string{"I can chat with you in English or Arabic. You can ask me about myself, the time, date, or just have a casual conversation! If I make a mistake, you can teach me by saying 'Learn: [correct response]'"},
		Arabic:  []string{"يمكنني التحدث معك باللغة الإنجليزية أو العربية. يمكنك أن تسألني عن نفسي، الوقت، التاريخ، أو مجرد إجراء محادثة عادية! إذا ارتكبت خطأ، يمكنك تعليمي بقول 'تعلم: [الرد الصحيح]'"},
	},
	IntentLearning: {
		English: []string{"I've learned this response. Thank you for teaching me!", "Got it! I'll remember this for next time."},
		Arabic:  []string{"لقد تعلمت هذا الرد. شكراً لتعليمي!", "فهمت! سأتذكر هذا للمرة القادمة."},
	},
	IntentSelfImprovement: {
		English: []string{"I'm designed to learn from our conversations. The more we chat, the better I get!"},
		Arabic:  []string{"أنا مصمم للتعلم من محادثاتنا. كلما تحدثنا أكثر، أصبحت أفضل!"},
	},
	IntentFormatting: {
		English: []string{"I support Markdown formatting! You can use **bold**, *italic*, `code`, lists, and more in your messages."},
		Arabic:  []string{"أنا أدعم تنسيق Markdown! يمكنك استخدام **غامق**، *مائل*، `الكود`، والقوائم، والمزيد في رسائلك."},
	},
}
