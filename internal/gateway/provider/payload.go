package provider

// ChatPayload 一次对话调用的输入。Images 只对视觉模型生效。
type ChatPayload struct {
	System     string
	User       string
	Images     []ImagePayload
	MaxTokens  int
	ExpectJSON bool
}

// ImagePayload 随消息携带的图片，DataURI 形如 data:image/png;base64,...
type ImagePayload struct {
	DataURI     string
	Description string
}
