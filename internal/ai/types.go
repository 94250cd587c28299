package ai

import "strings"

// Role роль автора реплики в истории диалога.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message одна реплика истории. Content: текст либо ссылка на картинку.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Mode способ кодирования content в запросе.
type Mode int

const (
	ModeText       Mode = iota // content строкой
	ModeMultimodal             // content массивом частей
)

func (m Mode) String() string {
	if m == ModeMultimodal {
		return "multimodal"
	}
	return "text"
}

type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// ContentPart часть содержимого сообщения: текст или ссылка на изображение.
type ContentPart struct {
	Type     PartType
	Text     string
	ImageURL string
}

func TextPart(text string) ContentPart { return ContentPart{Type: PartText, Text: text} }

func ImagePart(url string) ContentPart { return ContentPart{Type: PartImageURL, ImageURL: url} }

// ShapedMessage сообщение, готовое к отправке.
type ShapedMessage struct {
	Role    Role
	Content []ContentPart
}

// Text склеивает текстовые части сообщения.
func (m ShapedMessage) Text() string {
	var b strings.Builder
	for _, p := range m.Content {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// HasImage сообщает, есть ли в сообщении картинка.
func (m ShapedMessage) HasImage() bool {
	for _, p := range m.Content {
		if p.Type == PartImageURL {
			return true
		}
	}
	return false
}

// CompletionRequest параметры одного запроса чат-комплишена.
type CompletionRequest struct {
	Model       string
	Temperature float64
	TopP        float64
	Mode        Mode
	Messages    []ShapedMessage
}

// Answer успешный ответ модели.
type Answer struct {
	Content          string
	CompletionTokens int
	TotalTokens      int
}
