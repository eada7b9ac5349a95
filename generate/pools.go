package generate

import "github.com/groupline/feedsim/backend/persona"

var assets = []string{
	"EUR/USD", "BTC/USD", "ETH/USD", "USD/JPY", "GBP/USD", "AUD/USD", "US30", "NAS100",
	"GOLD", "SILVER", "NZD/USD", "USD/CAD", "EUR/JPY", "SPX500", "DOGE/USD",
	"XAU/USD", "XAG/USD", "GBP/JPY", "EUR/GBP", "AUD/JPY", "USD/CHF", "EUR/AUD",
}

var brokers = []string{
	"IQ Option", "Binomo", "Pocket Option", "Deriv", "Olymp Trade", "Quotex",
	"Spectre", "Binary.com", "Expert Option", "VideForex", "RaceOption",
}

var timeframes = []string{
	"M1", "M2", "M3", "M5", "M10", "M15", "M30", "H1", "H2", "H4", "D1",
}

var resultWords = []string{
	"green", "red", "profit", "loss", "win", "missed entry", "recovered",
	"swing trade success", "scalped nicely", "small win", "big win",
	"moderate loss", "loss recovered", "double profit", "consistent profit",
	"partial win", "micro win", "entry late but profitable",
	"stopped loss", "hedged correctly", "full green streak",
	"partial loss", "tp hit", "closed in loss", "nice scalp",
	"good hedge", "stopped out", "missed TP", "took profit",
	"broke even", "perfect exit", "swing winner", "overnight hold profit",
	"clean entry", "early entry", "late entry but worked", "fake breakout caught",
}

var emojis = []string{
	"💸", "🔥", "💯", "✨", "😎", "👀", "📈", "🚀", "💰", "🤑", "🎯", "🏆", "🤖", "🎉",
	"🍀", "📊", "⚡", "💎", "👑", "🦄", "🥂", "💡", "📉", "🧠", "🙏", "🙌", "😅",
	"🤦", "😬", "🤝", "✅", "❌", "🔒", "🔓", "📣", "📢", "📌", "🔔", "⚠️",
	"🟢", "🔴", "💥", "🥶", "🥵", "😤", "🤯", "🤩", "😈", "🤓", "💪", "📍",
	"💵", "💲", "💹", "🧾", "🧮", "⏳", "⌛", "🛑", "🎰", "📆", "🌙", "☀️",
}

var engagement = []string{
	"Nice!", "GG", "Solid entry", "On point", "Legend", "Who else entered?",
	"Share entry", "TP?", "SL?", "Risk %?", "Any hedge?", "Chart please",
	"Admin nailed it", "Signal clean", "That candle wicked",
}

var regionalSlang = map[persona.Region][]string{
	persona.RegionWestern: {"bro", "ngl", "lowkey", "fr", "tbh", "bet", "dope", "lit", "mad", "cap", "no cap", "fam"},
	persona.RegionAfrican: {"my guy", "omo", "chai", "no wahala", "gbam", "yawa", "sweet", "jollof", "palava", "chop"},
	persona.RegionAsian:   {"lah", "brother", "steady", "respect", "solid one", "ganbatte", "wa", "neat", "ok lah", "yah"},
	persona.RegionLatin:   {"amigo", "vamos", "muy bueno", "dale", "buenisimo", "chevere", "oye", "mano", "olé"},
	persona.RegionEastern: {"comrade", "strong move", "not bad", "da", "top", "okey", "nu", "bravo", "excellent", "good work"},
}

func slangFor(r persona.Region) []string {
	if s, ok := regionalSlang[r]; ok {
		return s
	}
	return regionalSlang[persona.RegionWestern]
}
