package notify

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/publicpulse/pulse/internal/record"
)

// Languages with templates.  Anything else renders in DefaultLanguage.
const (
	LangRU = "ru"
	LangKY = "ky"

	DefaultLanguage = LangRU
)

// emailCopy is the per-status wording of a status email.
type emailCopy struct {
	Subject string
	Title   string
	Message string
}

var emailTemplates = map[string]map[record.Status]emailCopy{
	LangRU: {
		record.StatusPending: {
			Subject: "Ваше обращение обрабатывается - PublicPulse",
			Title:   "Ваше обращение принято в обработку",
			Message: "Уважаемый гражданин! Ваше обращение поступило к нам и находится в процессе рассмотрения.",
		},
		record.StatusResolved: {
			Subject: "Ваше обращение решено - PublicPulse",
			Title:   "Ваше обращение успешно решено",
			Message: "Уважаемый гражданин! Ваше обращение было успешно рассмотрено и по нему приняты соответствующие меры.",
		},
		record.StatusCancelled: {
			Subject: "Ваше обращение отклонено - PublicPulse",
			Title:   "Ваше обращение отклонено",
			Message: "Уважаемый гражданин! К сожалению, ваше обращение было отклонено.",
		},
	},
	LangKY: {
		record.StatusPending: {
			Subject: "Арызыңыз каралууда - PublicPulse",
			Title:   "Арызыңыз каралууда",
			Message: "Урматтуу жарандар! Сиздин арызыңыз биздин тарабыбызга келип жетти жана азыр каралууда.",
		},
		record.StatusResolved: {
			Subject: "Арызыңыз чечилди - PublicPulse",
			Title:   "Арызыңыз ийгиликтүү чечилди",
			Message: "Урматтуу жарандар! Сиздин арызыңыз ийгиликтүү каралып, тийиштүү чаралар көрүлдү.",
		},
		record.StatusCancelled: {
			Subject: "Арызыңыз четке кагылды - PublicPulse",
			Title:   "Арызыңыз четке кагылды",
			Message: "Урматтуу жарандар! Тилекке каршы, сиздин арызыңыз четке кагылды.",
		},
	},
}

// labels holds the fixed words around the variable parts of a message.
type labels struct {
	Status, Details, Date, Type, Region, City, Service, Agency string
	Text, Notes, Regards, Team, Automatic, Number, Excerpt      string
	StatusNames                                                 map[record.Status]string
}

var labelSets = map[string]labels{
	LangRU: {
		Status: "Статус", Details: "Детали обращения", Date: "Дата подачи",
		Type: "Тип обращения", Region: "Регион", City: "Город", Service: "Услуга",
		Agency: "Ведомство", Text: "Текст обращения", Notes: "Примечания",
		Regards: "С уважением", Team: "Команда PublicPulse",
		Automatic: "Это автоматическое уведомление. Не отвечайте на данное письмо.",
		Number:    "Номер обращения", Excerpt: "Обращение",
		StatusNames: map[record.Status]string{
			record.StatusPending:   "В процессе",
			record.StatusResolved:  "Решено",
			record.StatusCancelled: "Отклонено",
		},
	},
	LangKY: {
		Status: "Абал", Details: "Арыздын чоо-жайы", Date: "Берилген күнү",
		Type: "Арыздын түрү", Region: "Аймак", City: "Шаар", Service: "Кызмат",
		Agency: "Мекеме", Text: "Арыздын тексти", Notes: "Эскертүүлөр",
		Regards: "Сый менен", Team: "PublicPulse командасы",
		Automatic: "Бул автоматтык билдирүү. Бул катка жооп бербеңиз.",
		Number:    "Арыздын номери", Excerpt: "Арыз",
		StatusNames: map[record.Status]string{
			record.StatusPending:   "Каралууда",
			record.StatusResolved:  "Чечилди",
			record.StatusCancelled: "Четке кагылды",
		},
	},
}

// botHeadlines opens a chat notification.
var botHeadlines = map[string]map[record.Status]string{
	LangRU: {
		record.StatusPending:   "⏳ Ваше обращение принято в обработку",
		record.StatusResolved:  "✅ Ваше обращение решено",
		record.StatusCancelled: "❌ Ваше обращение отклонено",
	},
	LangKY: {
		record.StatusPending:   "⏳ Арызыңыз каралууда",
		record.StatusResolved:  "✅ Арызыңыз чечилди",
		record.StatusCancelled: "❌ Арызыңыз четке кагылды",
	},
}

// language maps a preference onto a supported template language.
func language(pref string) string {
	l := strings.ToLower(strings.TrimSpace(pref))
	if _, ok := emailTemplates[l]; ok {
		return l
	}
	return DefaultLanguage
}

// excerptRunes bounds the complaint text quoted in chat messages.
const excerptRunes = 200

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= excerptRunes {
		return s
	}
	r := []rune(s)
	return string(r[:excerptRunes]) + "…"
}

// EmailText renders the status email for rec in its language.  ok is false for
// statuses without a template.
func EmailText(rec record.Record, to record.Status) (subject, body string, ok bool) {
	lang := language(rec.Language())
	c, ok := emailTemplates[lang][to]
	if !ok {
		return "", "", false
	}
	l := labelSets[lang]

	var b strings.Builder
	fmt.Fprintf(&b, "PublicPulse\n%s\n%s: %s\n\n", c.Title, l.Status, l.StatusNames[to])
	fmt.Fprintf(&b, "%s\n\n%s:\n", c.Message, l.Details)
	fmt.Fprintf(&b, "ID: #%s\n", rec.ID)
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "%s: %s\n", l.Date, rec.CreatedAt.In(bishkek).Format("02.01.2006 15:04"))
	}
	fmt.Fprintf(&b, "%s: %s\n", l.Type, rec.Category.Label())
	line(&b, l.Region, rec.Region)
	line(&b, l.City, rec.City)
	if !rec.IsSpam() {
		line(&b, l.Service, rec.Service)
		line(&b, l.Agency, rec.Agency)
	}
	fmt.Fprintf(&b, "\n%s:\n%s\n", l.Text, strings.TrimSpace(rec.Text))
	if n := strings.TrimSpace(rec.Notes); n != "" {
		fmt.Fprintf(&b, "\n%s:\n%s\n", l.Notes, n)
	}
	fmt.Fprintf(&b, "\n%s,\n%s\n\n%s\n", l.Regards, l.Team, l.Automatic)
	return c.Subject, b.String(), true
}

// BotText renders the chat notification for rec.  ok is false for statuses
// without a template.
func BotText(rec record.Record, to record.Status) (string, bool) {
	lang := language(rec.Language())
	head, ok := botHeadlines[lang][to]
	if !ok {
		return "", false
	}
	l := labelSets[lang]

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s: %s\n", head, l.Number, rec.ID)
	if t := excerpt(rec.Text); t != "" {
		fmt.Fprintf(&b, "%s: %s\n", l.Excerpt, t)
	}
	if n := strings.TrimSpace(rec.Notes); n != "" {
		fmt.Fprintf(&b, "\n%s: %s\n", l.Notes, n)
	}
	return b.String(), true
}

// AdminText is the operator alert for a newly submitted record.
func AdminText(rec record.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 НОВОЕ ОБРАЩЕНИЕ\n\n№ %s\n", rec.ID)
	fmt.Fprintf(&b, "Тип: %s\n", rec.Category.Label())
	line(&b, "Регион", rec.Region)
	line(&b, "Город", rec.City)
	fmt.Fprintf(&b, "Текст: %s\n", excerpt(rec.Text))
	if rec.IsSpam() {
		b.WriteString("\n🔍 Классификация: Spam\n")
	} else {
		fmt.Fprintf(&b, "\n🔍 Классификация: %s\n🏛️ Ведомство: %s\n", rec.Service, rec.Agency)
	}
	return b.String()
}

func line(b *strings.Builder, label, v string) {
	if v = strings.TrimSpace(v); v != "" {
		fmt.Fprintf(b, "%s: %s\n", label, v)
	}
}

// bishkek is UTC+6 year-round.
var bishkek = time.FixedZone("Asia/Bishkek", 6*60*60)
