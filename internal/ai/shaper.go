package ai

import "strings"

// TutoringPrompt инструкция, которая сопровождает каждую картинку в мультимодальном запросе.
const TutoringPrompt = "请先在问题解答、课堂笔记辅导、知识点复习卡片、课后作业支持、错题练习5个任务上进行理解，并与用户的上下文结合，输出内容需以清晰、简洁、友好的形式呈现，并提供适当的背景知识补充或思路引导"

var imageSuffixes = []string{".jpg", ".png", ".jpeg"}

// IsImageRef сообщает, является ли content ссылкой на картинку. Регистр суффикса учитывается.
func IsImageRef(content string) bool {
	for _, s := range imageSuffixes {
		if strings.HasSuffix(content, s) {
			return true
		}
	}
	return false
}

// Shape кодирует историю в выбранном режиме.
func Shape(mode Mode, history []Message) []ShapedMessage {
	if mode == ModeMultimodal {
		return ShapeMultimodal(history)
	}
	return ShapeText(history)
}

// ShapeText переносит каждое сообщение как единственную текстовую часть.
func ShapeText(history []Message) []ShapedMessage {
	out := make([]ShapedMessage, 0, len(history))
	for _, m := range history {
		out = append(out, ShapedMessage{Role: m.Role, Content: []ContentPart{TextPart(m.Content)}})
	}
	return out
}

// ShapeMultimodal заменяет ссылки на картинки парой: инструкция + image_url.
// На стороне сервера картинки лежат уже в jpg, поэтому .png в ссылке меняется на .jpg.
func ShapeMultimodal(history []Message) []ShapedMessage {
	out := make([]ShapedMessage, 0, len(history))
	for _, m := range history {
		if !IsImageRef(m.Content) {
			out = append(out, ShapedMessage{Role: m.Role, Content: []ContentPart{TextPart(m.Content)}})
			continue
		}
		out = append(out, ShapedMessage{
			Role: m.Role,
			Content: []ContentPart{
				TextPart(TutoringPrompt),
				ImagePart(strings.ReplaceAll(m.Content, ".png", ".jpg")),
			},
		})
	}
	return out
}
