package domain

import (
	"strings"
	"time"
)

// Tier описывает уровень подписки.
type Tier string

const (
	TierFree    Tier = "free"
	TierPulse   Tier = "tier1"
	TierNova    Tier = "tier2"
	TierEclipse Tier = "tier3"
)

// SubscriptionDays длительность одного цикла подписки.
const SubscriptionDays = 30

// TierPlan описывает параметры тарифа.
type TierPlan struct {
	Tier       Tier
	Name       string
	Price      int
	DailyLimit int
	Rank       int
}

var tierPlans = map[Tier]TierPlan{
	TierFree:    {Tier: TierFree, Name: "Zenith Spark", Price: 0, DailyLimit: 20, Rank: 0},
	TierPulse:   {Tier: TierPulse, Name: "Zenith Pulse", Price: 300, DailyLimit: 20000, Rank: 1},
	TierNova:    {Tier: TierNova, Name: "Zenith Nova", Price: 500, DailyLimit: 40000, Rank: 2},
	TierEclipse: {Tier: TierEclipse, Name: "Zenith Eclipse", Price: 700, DailyLimit: 100000, Rank: 3},
}

// PaidTiers в порядке возрастания.
var PaidTiers = []Tier{TierPulse, TierNova, TierEclipse}

// ParseTier разбирает строку в Tier без учета регистра.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidTier
	}
	return t, nil
}

func (t Tier) String() string {
	return string(t)
}

func (t Tier) IsValid() bool {
	_, ok := tierPlans[t]
	return ok
}

func (t Tier) IsPaid() bool {
	return t.IsValid() && t != TierFree
}

// Plan возвращает тариф; неизвестный уровень считается бесплатным.
func (t Tier) Plan() TierPlan {
	if plan, ok := tierPlans[t]; ok {
		return plan
	}
	return tierPlans[TierFree]
}

func (t Tier) DisplayName() string {
	return t.Plan().Name
}

func (t Tier) Price() int {
	return t.Plan().Price
}

// DailyLimit количество токенов в сутки.
func (t Tier) DailyLimit() int {
	return t.Plan().DailyLimit
}

func (t Tier) LimitLabel() string {
	switch t {
	case TierPulse:
		return "20k пар токенов/день"
	case TierNova:
		return "40k пар токенов/день"
	case TierEclipse:
		return "100k пар токенов/день"
	}
	return "20 пар токенов/день"
}

// IsSubscriptionActive: бесплатный уровень и отсутствующий или прошедший срок неактивны.
func IsSubscriptionActive(tier Tier, expires *time.Time, now time.Time) bool {
	if !tier.IsPaid() {
		return false
	}
	if expires == nil {
		return false
	}
	return expires.After(now)
}

// EffectiveTier возвращает уровень, по которому считается квота.
func EffectiveTier(tier Tier, expires *time.Time, now time.Time) Tier {
	if IsSubscriptionActive(tier, expires, now) {
		return tier
	}
	return TierFree
}

// UpgradeOptions возвращает тарифы, доступные для покупки.
// Для активной подписки это продление текущего и более старшие уровни.
func UpgradeOptions(tier Tier, expires *time.Time, now time.Time) []Tier {
	if !IsSubscriptionActive(tier, expires, now) {
		return append([]Tier(nil), PaidTiers...)
	}
	rank := tier.Plan().Rank
	var out []Tier
	for _, t := range PaidTiers {
		if t.Plan().Rank >= rank {
			out = append(out, t)
		}
	}
	return out
}

// TokenCost оценивает стоимость сообщения: два токена на слово.
func TokenCost(text string) int {
	return len(strings.Fields(text)) * 2
}
