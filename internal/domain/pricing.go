package domain

// ReferralLevels глубина реферальной цепочки.
const ReferralLevels = 3

var referralPercents = [ReferralLevels]int{15, 10, 5}

// ReferralPercent процент выплаты для уровня 1..3.
func ReferralPercent(level int) int {
	if level < 1 || level > ReferralLevels {
		return 0
	}
	return referralPercents[level-1]
}

// ReferralBonus начисление уровню с округлением вниз.
func ReferralBonus(amount, level int) int {
	if amount <= 0 {
		return 0
	}
	return amount * ReferralPercent(level) / 100
}

// DiscountedPrice цена со скидкой, округленная вниз до целого рубля.
func DiscountedPrice(price, percent int) int {
	if percent <= 0 {
		return price
	}
	if percent >= 100 {
		return 0
	}
	return price * (100 - percent) / 100
}

// ValidateDiscountParams проверяет параметры кода на границе ввода.
func ValidateDiscountParams(percent, maxUses int) error {
	if percent < 1 || percent > 100 || maxUses < 1 {
		return ErrInvalidDiscount
	}
	return nil
}
