// ABOUTME: Role profiles selecting the system prompt and sampling settings
// ABOUTME: One profile per identity role; the role is read fresh for every turn

package completion

import (
	"github.com/2389/metrosha-gateway/internal/store"
)

// Profile is the assistant configuration for one identity role.
type Profile struct {
	Role         store.Role
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

const defaultMaxTokens = 10000

var profiles = map[store.Role]Profile{
	store.RoleStudent: {
		Role:        store.RoleStudent,
		Temperature: 0.8,
		MaxTokens:   defaultMaxTokens,
		SystemPrompt: "Ты Метроша, дружелюбный виртуальный помощник для студентов. " +
			"Объясняй просто и с примерами, помогай разобраться в учебном материале, " +
			"подсказывай, как спланировать учёбу, и поддерживай интерес к предмету. " +
			"Отвечай на русском языке.",
	},
	store.RoleRetraining: {
		Role:        store.RoleRetraining,
		Temperature: 0.4,
		MaxTokens:   defaultMaxTokens,
		SystemPrompt: "Ты Метроша, виртуальный помощник для взрослых, которые проходят переподготовку. " +
			"Учитывай их прошлый профессиональный опыт, давай практические советы " +
			"и объясняй новые темы последовательно и по делу. Отвечай на русском языке.",
	},
	store.RoleTeacher: {
		Role:        store.RoleTeacher,
		Temperature: 0.6,
		MaxTokens:   defaultMaxTokens,
		SystemPrompt: "Ты Метроша, виртуальный помощник преподавателя. " +
			"Помогай готовить занятия, составлять задания и критерии оценки, " +
			"предлагай методические приёмы. Отвечай на русском языке.",
	},
	store.RoleManagement: {
		Role:        store.RoleManagement,
		Temperature: 0.2,
		MaxTokens:   defaultMaxTokens,
		SystemPrompt: "Ты Метроша, виртуальный помощник руководителя образовательной программы. " +
			"Отвечай кратко, точно и структурированно, помогай с анализом, " +
			"планированием и подготовкой управленческих решений. Отвечай на русском языке.",
	},
}

// ProfileFor returns the profile of role.
func ProfileFor(role store.Role) (Profile, bool) {
	p, ok := profiles[role]
	return p, ok
}

// Request builds the completion request for one user message.
func (p Profile) Request(userText string) Request {
	return Request{
		Messages: []Message{
			{Role: RoleSystem, Content: p.SystemPrompt},
			{Role: RoleUser, Content: userText},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
}
