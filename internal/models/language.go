package models

import "fmt"

// Language constants
const (
	LangSimplifiedChinese = "zh_CN"
	LangEnglish           = "en"
)

// Translation is a map of message keys to translated text
type Translation map[string]string

// Translations stores all language translations
var Translations = map[string]Translation{
	LangSimplifiedChinese: {
		"cmd_desc_clear": "清除聊天上下文（管理员）",

		"no_permission":      "❌ 你没有权限使用清除上下文命令",
		"missing_chat":       "❌ 无法获取聊天ID",
		"unknown_subcommand": "未知命令: %s\n使用 /clear help 查看帮助",
		"invalid_number":     "❌ 参数必须是正整数: %s",
		"clear_failed":       "❌ 清除失败，请查看日志",

		"nothing_all":    "当前聊天没有消息记录",
		"cleared_all":    "✅ 已清除所有上下文\n\n删除了 %d 条消息记录",
		"nothing_recent": "没有找到消息记录",
		"cleared_recent": "✅ 已清除最近 %d 条消息\n\n实际删除了 %d 条记录",
		"nothing_before": "没有找到 %d 小时之前的消息",
		"cleared_before": "✅ 已清除 %d 小时前的消息\n\n删除了 %d 条记录",

		"help_text": "🗑️ 上下文清除命令\n\n" +
			"⚠️  此命令需要管理员权限\n\n" +
			"用法:\n" +
			"/clear all | 全部 - 清除当前聊天的所有消息记录\n" +
			"/clear recent | 最近 [数量] - 清除最近N条消息（默认10条）\n" +
			"/clear before | 之前 [小时] - 清除N小时前的消息（默认24小时）\n" +
			"/clear amnesia | 失忆 - 完全失忆，清除所有聊天与学习数据（需要确认）\n" +
			"/clear amnesia confirm | 失忆 确认 - 确认完全失忆\n" +
			"/clear help | 帮助 - 显示此帮助\n\n" +
			"示例:\n" +
			"/clear recent 20        # 清除最近20条消息\n" +
			"/清除上下文 之前 48       # 清除48小时前的消息\n\n" +
			"⚠️ 警告: 清除后无法恢复！",

		"amnesia_warning": "⚠️ <b>即将执行完全失忆</b>\n以下内容将被永久删除：\n%s\n\n" +
			"请在 %d 秒内发送 /clear 失忆 确认，或在本聊天中直接发送「确认」。",
		"amnesia_pending":    "⏳ 你已有一个待确认的失忆请求，请在 %d 秒内确认",
		"amnesia_no_pending": "❌ 没有待确认的失忆请求",
		"amnesia_expired":    "⌛ 失忆请求已过期，请重新发起",
		"amnesia_wrong_chat": "❌ 请在发起失忆请求的聊天中确认",
		"amnesia_done":       "🧠 失忆完成，共删除 %d 条记录：\n%s",
		"amnesia_failed":     "❌ 失忆失败，请查看日志",

		"target_messages":       "所有聊天消息",
		"target_chat_streams":   "所有聊天流",
		"target_person_info":    "所有用户画像",
		"target_group_info":     "所有群组画像",
		"target_expression":     "学习到的表达方式",
		"target_action_records": "动作记录",
		"target_chat_history":   "长期聊天记忆",
		"target_thinking_back":  "回忆记录",
		"target_jargon":         "学习到的黑话",
		"target_local_store":    "本地统计文件 %s（保留统计数据）",
		"target_style_dir":      "学习风格目录 %s",
	},

	LangEnglish: {
		"cmd_desc_clear": "Clear chat context (admins)",

		"no_permission":      "❌ You are not allowed to use the clear command",
		"missing_chat":       "❌ Unable to resolve the chat id",
		"unknown_subcommand": "Unknown command: %s\nSend /clear help for usage",
		"invalid_number":     "❌ The argument must be a positive integer: %s",
		"clear_failed":       "❌ Clearing failed, check the logs",

		"nothing_all":    "This chat has no stored messages",
		"cleared_all":    "✅ All context cleared\n\nRemoved %d messages",
		"nothing_recent": "No messages found",
		"cleared_recent": "✅ Cleared the most recent %d messages\n\nActually removed %d records",
		"nothing_before": "No messages older than %d hours",
		"cleared_before": "✅ Cleared messages older than %d hours\n\nRemoved %d records",

		"help_text": "🗑️ Context clearing\n\n" +
			"⚠️  Requires admin permission\n\n" +
			"Usage:\n" +
			"/clear all - remove every stored message of this chat\n" +
			"/clear recent [count] - remove the N most recent messages (default 10)\n" +
			"/clear before [hours] - remove messages older than N hours (default 24)\n" +
			"/clear amnesia - forget everything, chats and learned data (needs confirmation)\n" +
			"/clear amnesia confirm - confirm the amnesia\n" +
			"/clear help - show this help\n\n" +
			"⚠️ Warning: this cannot be undone!",

		"amnesia_warning": "⚠️ <b>Full amnesia requested</b>\nThe following will be permanently deleted:\n%s\n\n" +
			"Send /clear amnesia confirm within %d seconds, or just send \"confirm\" in this chat.",
		"amnesia_pending":    "⏳ You already have a pending amnesia request, confirm it within %d seconds",
		"amnesia_no_pending": "❌ There is no pending amnesia request",
		"amnesia_expired":    "⌛ The amnesia request expired, please start over",
		"amnesia_wrong_chat": "❌ Confirm in the chat where the request was made",
		"amnesia_done":       "🧠 Amnesia complete, removed %d records:\n%s",
		"amnesia_failed":     "❌ Amnesia failed, check the logs",

		"target_messages":       "all chat messages",
		"target_chat_streams":   "all chat streams",
		"target_person_info":    "all person profiles",
		"target_group_info":     "all group profiles",
		"target_expression":     "learned expressions",
		"target_action_records": "action records",
		"target_chat_history":   "long-term chat memory",
		"target_thinking_back":  "thinking-back records",
		"target_jargon":         "learned jargon",
		"target_local_store":    "local state file %s (statistics kept)",
		"target_style_dir":      "learned style directory %s",
	},
}

// GetTranslation returns the correct translation for a given language code and key
func GetTranslation(lang, key string) string {
	// Default to Simplified Chinese if language not supported
	if _, ok := Translations[lang]; !ok {
		lang = LangSimplifiedChinese
	}

	if translation, ok := Translations[lang][key]; ok {
		return translation
	}

	// Fall back to Simplified Chinese if key not found in specified language
	if translation, ok := Translations[LangSimplifiedChinese][key]; ok {
		return translation
	}

	// Return the key itself if translation not found
	return key
}

// Tf formats a translated template.
func Tf(lang, key string, args ...interface{}) string {
	return fmt.Sprintf(GetTranslation(lang, key), args...)
}

// GetLanguageName returns the localized name of a language code
func GetLanguageName(langCode string) string {
	switch langCode {
	case LangSimplifiedChinese:
		return "简体中文"
	case LangEnglish:
		return "English"
	default:
		return langCode
	}
}
