package notifier

import (
	"fmt"
	"sort"
	"strings"

	"osiri-dispatch/internal/domain/entity"
)

type limitText struct {
	title string
	body  string // %d = daily limit
	plan  string
}

var limitTexts = map[string]limitText{
	"en": {"Daily notification limit reached", "Your organization has used all %d notifications for today. Delivery resumes tomorrow.", "Plan"},
	"ja": {"本日の通知上限に達しました", "本日の通知枠（%d件）をすべて使用しました。配信は明日再開されます。", "プラン"},
	"es": {"Límite diario de notificaciones alcanzado", "Tu organización ha usado las %d notificaciones de hoy. El envío se reanudará mañana.", "Plan"},
	"fr": {"Limite quotidienne de notifications atteinte", "Votre organisation a utilisé les %d notifications du jour. L'envoi reprendra demain.", "Forfait"},
	"de": {"Tägliches Benachrichtigungslimit erreicht", "Ihre Organisation hat alle %d Benachrichtigungen für heute verbraucht. Der Versand wird morgen fortgesetzt.", "Tarif"},
	"pt": {"Limite diário de notificações atingido", "Sua organização usou todas as %d notificações de hoje. O envio será retomado amanhã.", "Plano"},
	"zh": {"已达到每日通知上限", "您的组织今天已用完全部 %d 条通知。明天将恢复发送。", "套餐"},
	"ko": {"일일 알림 한도에 도달했습니다", "오늘 사용할 수 있는 알림 %d건을 모두 사용했습니다. 내일 다시 전송됩니다.", "요금제"},
	"it": {"Limite giornaliero di notifiche raggiunto", "La tua organizzazione ha utilizzato tutte le %d notifiche di oggi. L'invio riprenderà domani.", "Piano"},
	"ru": {"Достигнут дневной лимит уведомлений", "Ваша организация использовала все %d уведомлений на сегодня. Отправка возобновится завтра.", "Тариф"},
	"ar": {"تم بلوغ الحد اليومي للإشعارات", "استخدمت مؤسستك جميع الإشعارات المتاحة اليوم (%d). سيُستأنف الإرسال غدًا.", "الخطة"},
	"hi": {"दैनिक सूचना सीमा पूरी हो गई", "आपके संगठन ने आज की सभी %d सूचनाएँ उपयोग कर ली हैं। भेजना कल फिर शुरू होगा।", "प्लान"},
}

// LimitMessageLanguages lists the languages with a localized limit notice.
func LimitMessageLanguages() []string {
	langs := make([]string, 0, len(limitTexts))
	for lang := range limitTexts {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// lookupLimitText matches "pt-BR" to "pt" and falls back to English.
func lookupLimitText(lang string) limitText {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if t, ok := limitTexts[lang]; ok {
		return t
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		if t, ok := limitTexts[lang[:i]]; ok {
			return t
		}
	}
	return limitTexts[entity.DefaultLanguage]
}

func renderLimitBody(status *entity.OrganizationSubscriptionStatus, t limitText) string {
	limit := 0
	if status != nil {
		limit, _ = status.DailyLimit()
	}
	body := fmt.Sprintf(t.body, limit)
	if status != nil && status.PlanName != "" {
		body += fmt.Sprintf("\n%s: %s", t.plan, status.PlanName)
	}
	return body
}

// BuildSlackLimitMessage renders the "daily limit reached" notice for Slack.
func BuildSlackLimitMessage(status *entity.OrganizationSubscriptionStatus, lang string) SlackMessage {
	t := lookupLimitText(lang)
	body := renderLimitBody(status, t)
	return SlackMessage{
		Text: t.title,
		Blocks: []SlackBlock{
			{Type: "section", Text: &SlackTextObject{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%s", t.title, escapeMrkdwn(body))}},
		},
	}
}

// BuildDiscordLimitMessage renders the "daily limit reached" notice for Discord.
func BuildDiscordLimitMessage(status *entity.OrganizationSubscriptionStatus, lang string) DiscordMessage {
	t := lookupLimitText(lang)
	return DiscordMessage{Embeds: []DiscordEmbed{{
		Title:       t.title,
		Description: renderLimitBody(status, t),
		Color:       discordAmberColor,
	}}}
}
