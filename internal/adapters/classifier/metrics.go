package classifier

// Metric — именованная эмоциональная метрика ответа классификатора.
type Metric struct {
	Name        string
	Description string
}

// Metrics — полный набор метрик схемы ответа, в порядке вывода.
var Metrics = []Metric{
	{"concept_or_meme_strength", "How powerful and engaging the core idea or meme is. 0: members are not focused on the idea, 100: the topic is universally captivating."},
	{"fairness", "Is the token perceived as fair by participants? 0: widespread suspicion or discontent, 100: widely accepted as economically fair and evenly distributed."},
	{"vc_cabal", "Do insiders, venture funds, whales or cabals control the price? 0: widespread belief that insiders are in control, 100: widespread belief that the community at large is in control."},
	{"sell_intent", "Are people planning to sell? 0: open and widespread intent to sell, 100: widespread 'hold forever' or 'diamond hands' sentiment."},
	{"vibes", "How good are the vibes? 0: widespread negativity and harshness, 100: general support, encouragement and generosity."},
	{"community_strength", "Is this a tight-knit community? 0: members regard each other as strangers, 100: intimate and personal connection between all participants."},
	{"emotional_intensity", "Is the discussion emotionally charged? 0: flat or dry discussion, 100: highly charged across all participants."},
	{"stickiness", "Ignoring bursts of repeated messages, do users return and contribute over many hours? 0: most users post once, 100: all users contribute throughout the log."},
	{"socioeconomic", "From clues in the chat, what is the socioeconomic status of members? 0: all users of low status, 100: all users wealthy and well connected."},
	{"price_action_focus", "Is there a strong focus on token price? 0: no discussion of price action, 100: fixation on price movements."},
	{"perceived_maximum_upside", "Do participants believe the project will make them rich? 0: widespread disbelief, 100: widespread belief holders will become rich."},
	{"free_cult_labor", "Do people volunteer time for the project without pay (raids, original memes, evangelism)? 0: no such activity, 100: widespread participation."},
	{"community_health", "Is the community vibrant and growing or dead? 0: anemic dead community, 100: vibrant healthy community."},
	{"buy_inquiry", "Are newcomers asking where or how to buy? 0: nobody asks, 100: widespread inquiries about buying."},
	{"inspiration", "Do members derive inspiration and hope from the community? 0: nobody expresses it, 100: widespread expressions of inspiration and hope."},
}

// MetricNames возвращает имена метрик в порядке объявления.
func MetricNames() []string {
	names := make([]string, len(Metrics))
	for i, m := range Metrics {
		names[i] = m.Name
	}
	return names
}
