package contextkeys

import "context"

type messageTypeKey struct{}
type userIDKey struct{}
type chatIDKey struct{}
type langKey struct{}
type callbackDataKey struct{}

type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeCommand     MessageType = "command"
	MessageTypeClickButton MessageType = "clickButton"
	MessageTypePreCheckout MessageType = "preCheckout"
	MessageTypePayment     MessageType = "payment"
	MessageTypeUnknown     MessageType = "unknown"
)

func WithMessageType(ctx context.Context, msgType MessageType) context.Context {
	return context.WithValue(ctx, messageTypeKey{}, msgType)
}

func GetMessageType(ctx context.Context) (MessageType, bool) {
	v := ctx.Value(messageTypeKey{})
	if v == nil {
		return MessageTypeUnknown, false
	}
	return v.(MessageType), true
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func GetUserID(ctx context.Context) (int64, bool) {
	v := ctx.Value(userIDKey{})
	if v == nil {
		return 0, false
	}
	return v.(int64), true
}

func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

func GetChatID(ctx context.Context) (int64, bool) {
	v := ctx.Value(chatIDKey{})
	if v == nil {
		return 0, false
	}
	return v.(int64), true
}

func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

func GetLang(ctx context.Context) (string, bool) {
	v := ctx.Value(langKey{})
	if v == nil {
		return "", false
	}
	return v.(string), true
}

func WithCallbackData(ctx context.Context, data string) context.Context {
	return context.WithValue(ctx, callbackDataKey{}, data)
}

func GetCallbackData(ctx context.Context) (string, bool) {
	v := ctx.Value(callbackDataKey{})
	if v == nil {
		return "", false
	}
	return v.(string), true
}
