package tune

// persian asks for grammar, fluency and spelling fixes and forbids
// translation or changes to terminology and content.
const persian = "فقط متن فارسی زیر را از نظر:\n" +
	"1. دستور زبان و ساختار جملات\n" +
	"2. روان‌سازی و طبیعی‌سازی متن\n" +
	"3. اصلاح اشتباهات املایی و نگارشی\n\n" +
	"مهم: تحت هیچ شرایطی:\n" +
	"- متن را ترجمه نکن\n" +
	"- اصطلاحات تخصصی را تغییر نده\n" +
	"- محتوای اصلی را عوض نکن"

// Instructions maps a language code to the system prompt sent with its text.
type Instructions struct {
	ByLanguage map[string]string
	Default    string
}

// DefaultInstructions returns the built-in prompts for Persian and English.
func DefaultInstructions() Instructions {
	return Instructions{
		ByLanguage: map[string]string{
			"fa": persian,
			"en": "Improve this English text's grammar and clarity without translation",
		},
		Default: "Improve grammar and clarity while preserving the original language",
	}
}

// For returns the prompt for language, or Default when none is registered.
func (in Instructions) For(language string) string {
	if s, ok := in.ByLanguage[language]; ok && s != "" {
		return s
	}
	return in.Default
}
