package flow

import (
	"fmt"
	"strings"

	"github.com/publicpulse/pulse/internal/record"
)

// Languages the flow speaks.
const (
	langRU = "ru"
	langKY = "ky"
)

func language(pref string) string {
	if strings.EqualFold(strings.TrimSpace(pref), langKY) {
		return langKY
	}
	return langRU
}

// Prompt keys.  Each State has a prompt of the same name.
const (
	keyInvalidChoice = "invalid_choice"
	keyTextTooShort  = "text_too_short"
	keyNameTooShort  = "name_too_short"
	keyPhotoExpected = "photo_expected"
	keySubmitted     = "submitted"
	keyQueued        = "queued"
	keyCancelled     = "cancelled"
	keyFailed        = "failed"
)

var prompts = map[string]map[string]string{
	langRU: {
		string(StateCategory): "Выберите тип обращения:",
		string(StateLocation): "Отправьте геолокацию или пропустите этот шаг, чтобы выбрать регион вручную.",
		string(StateRegion):   "Выберите регион:",
		string(StateCity):     "Выберите город или район:",
		string(StateStreet):   "Укажите улицу и номер дома (или пропустите):",
		string(StateText):     "Опишите проблему подробно:",
		string(StatePhoto):    "Прикрепите фото (или пропустите):",
		string(StateSolution): "Предложите решение (или пропустите):",
		string(StateName):     "Как к вам обращаться? Укажите имя:",
		string(StateConfirm):  "Проверьте обращение и подтвердите отправку:",
		keyInvalidChoice:      "Пожалуйста, выберите вариант из списка.",
		keyTextTooShort:       "Описание слишком короткое. Напишите не менее 10 символов.",
		keyNameTooShort:       "Имя слишком короткое. Напишите не менее 2 символов.",
		keyPhotoExpected:      "Пришлите фото или нажмите «Пропустить».",
		keySubmitted:          "Спасибо! Ваше обращение принято. Номер: %s",
		keyQueued:             "Не удалось отправить обращение сейчас. Оно сохранено и будет обработано позже. Локальный номер: %s",
		keyCancelled:          "Обращение отменено.",
		keyFailed:             "Не удалось отправить обращение. Попробуйте ещё раз.",
	},
	langKY: {
		string(StateCategory): "Кайрылуунун түрүн тандаңыз:",
		string(StateLocation): "Геолокацияны жөнөтүңүз же аймакты кол менен тандоо үчүн бул кадамды өткөрүп жибериңиз.",
		string(StateRegion):   "Аймакты тандаңыз:",
		string(StateCity):     "Шаарды же районду тандаңыз:",
		string(StateStreet):   "Көчөнү жана үйдүн номерин жазыңыз (же өткөрүп жибериңиз):",
		string(StateText):     "Көйгөйдү кеңири жазыңыз:",
		string(StatePhoto):    "Сүрөт тиркеңиз (же өткөрүп жибериңиз):",
		string(StateSolution): "Чечимди сунуштаңыз (же өткөрүп жибериңиз):",
		string(StateName):     "Атыңызды жазыңыз:",
		string(StateConfirm):  "Кайрылууну текшерип, жөнөтүүнү ырастаңыз:",
		keyInvalidChoice:      "Тизмеден вариант тандаңыз.",
		keyTextTooShort:       "Сүрөттөмө өтө кыска. Кеминде 10 белги жазыңыз.",
		keyNameTooShort:       "Аты өтө кыска. Кеминде 2 белги жазыңыз.",
		keyPhotoExpected:      "Сүрөт жөнөтүңүз же «Өткөрүп жиберүү» баскычын басыңыз.",
		keySubmitted:          "Рахмат! Кайрылууңуз кабыл алынды. Номери: %s",
		keyQueued:             "Кайрылууну азыр жөнөтүү мүмкүн болгон жок. Ал сакталды жана кийинчерээк каралат. Жергиликтүү номер: %s",
		keyCancelled:          "Кайрылуу жокко чыгарылды.",
		keyFailed:             "Кайрылууну жөнөтүү мүмкүн болгон жок. Кайра аракет кылыңыз.",
	},
}

// Button labels per language.  Commands are also accepted as these labels.
var buttons = map[string]map[Command]string{
	langRU: {CmdSkip: "Пропустить", CmdBack: "⬅️ Назад", CmdCancel: "Отмена", CmdConfirm: "✅ Отправить"},
	langKY: {CmdSkip: "Өткөрүп жиберүү", CmdBack: "⬅️ Артка", CmdCancel: "Жокко чыгаруу", CmdConfirm: "✅ Жөнөтүү"},
}

type summaryLabels struct {
	category, place, street, text, photo, solution, name, yes, no string
}

var summaries = map[string]summaryLabels{
	langRU: {"Тип", "Место", "Адрес", "Описание", "Фото", "Решение", "Имя", "есть", "нет"},
	langKY: {"Түрү", "Жери", "Дареги", "Сүрөттөмө", "Сүрөт", "Чечим", "Аты", "бар", "жок"},
}

func prompt(lang, key string, args ...any) string {
	s := prompts[language(lang)][key]
	if len(args) > 0 {
		return fmt.Sprintf(s, args...)
	}
	return s
}

// summary renders the confirmation card.
func summary(lang string, d Data) string {
	l := summaries[language(lang)]
	var b strings.Builder
	b.WriteString(prompt(lang, string(StateConfirm)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s: %s\n", l.category, d.Category.Label())

	place := strings.Trim(strings.Join([]string{d.Region, d.City}, ", "), ", ")
	if place == "" && d.HasDeviceLocation() {
		place = fmt.Sprintf("%.5f, %.5f", *d.Lat, *d.Lng)
	}
	if place != "" {
		fmt.Fprintf(&b, "%s: %s\n", l.place, place)
	}
	if d.Street != "" {
		fmt.Fprintf(&b, "%s: %s\n", l.street, d.Street)
	}
	fmt.Fprintf(&b, "%s: %s\n", l.text, d.Text)
	if d.Category == record.CategoryComplaint {
		has := l.no
		if len(d.Photo) > 0 {
			has = l.yes
		}
		fmt.Fprintf(&b, "%s: %s\n", l.photo, has)
		if d.Solution != "" {
			fmt.Fprintf(&b, "%s: %s\n", l.solution, d.Solution)
		}
	}
	fmt.Fprintf(&b, "%s: %s", l.name, d.Name)
	return b.String()
}
