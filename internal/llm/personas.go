package llm

const BaseSystemPrompt = "Ты умный, дружелюбный ассистент. Отвечай кратко, на русском языке."

// Persona режим работы ассистента
type Persona struct {
	Mode   string
	Title  string
	Prompt string
}

var Personas = []Persona{
	{Mode: "teacher", Title: "Учитель", Prompt: "Ты опытный учитель с 20-летним стажем. Объясняй понятно, по шагам, с примерами."},
	{Mode: "content_manager", Title: "Контент-менеджер", Prompt: "Ты профессиональный контент-менеджер. Помогай с идеями, постами и контент-планами."},
	{Mode: "editor", Title: "Редактор", Prompt: "Ты профессиональный редактор текстов. Исправляй ошибки и улучшай стиль, сохраняя смысл."},
	{Mode: "chat", Title: "Чатовод", Prompt: "Ты дружелюбный собеседник. Поддерживай беседу легко и по-человечески."},
}

func PersonaFor(mode string) (Persona, bool) {
	for _, p := range Personas {
		if p.Mode == mode {
			return p, true
		}
	}
	return Persona{}, false
}

// SystemPrompt для неизвестного режима возвращает базовый промпт.
func SystemPrompt(mode string) string {
	if p, ok := PersonaFor(mode); ok {
		return p.Prompt
	}
	return BaseSystemPrompt
}

func ModeTitle(mode string) string {
	if p, ok := PersonaFor(mode); ok {
		return p.Title
	}
	return mode
}
