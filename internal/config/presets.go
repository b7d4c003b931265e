package config

// Profile определяет встроенный профиль вариантов.
type Profile string

const (
	// ProfileDefault - полный набор: 4 ширины, webp, 3 ступени видео, постер.
	ProfileDefault Profile = "default"
	// ProfileMobile - облегчённый набор для мобильного трафика: 400/800, low/medium.
	ProfileMobile Profile = "mobile"
	// ProfileHQ - высокое качество: качество 92, CRF 22, ступень 1080p без понижения битрейта.
	ProfileHQ Profile = "hq"
)

// profileFuncs применяет изменения профиля поверх каталога по умолчанию.
var profileFuncs = map[Profile]func(s *VariantSpec){
	ProfileDefault: func(s *VariantSpec) {},
	ProfileMobile: func(s *VariantSpec) {
		s.Image.Quality = 75
		s.Image.Widths = []int{400, 800}
		s.Video.CRF = 30
		s.Video.MaxWidth = 1280
		s.Video.MaxHeight = 720
		s.Video.MaxBitrate = 1 * Megabit
		s.Video.Tiers = []VideoTier{
			{Name: "low", Width: 640, MaxBitrate: 500 * Kilobit},
			{Name: "medium", Width: 1280, MaxBitrate: 1 * Megabit},
		}
		s.Video.PosterMaxWidth = 1280
	},
	ProfileHQ: func(s *VariantSpec) {
		s.Image.Quality = 92
		s.Image.PNGQuality = 95
		s.Image.Widths = []int{400, 800, 1200, 1600, 2400}
		s.Video.CRF = 22
		s.Video.Preset = "medium"
		s.Video.Profile = "high"
		s.Video.Level = "4.1"
		s.Video.MaxBitrate = 5 * Megabit
		s.Video.Tiers = []VideoTier{
			{Name: "low", Width: 640, MaxBitrate: 800 * Kilobit},
			{Name: "medium", Width: 1280, MaxBitrate: 2 * Megabit},
			{Name: "high", Width: 1920, MaxBitrate: 5 * Megabit},
		}
	},
}

// ApplyProfile сбрасывает каталог вариантов к значениям профиля.
// Возвращает true, если профиль был применён.
func (c *Config) ApplyProfile(name string) bool {
	apply, ok := profileFuncs[Profile(name)]
	if !ok {
		return false
	}

	spec := DefaultVariantSpec()
	apply(&spec)
	c.Spec = spec
	c.Profile = name

	return true
}

// ValidProfiles возвращает список встроенных профилей.
func ValidProfiles() []string {
	return []string{
		string(ProfileDefault),
		string(ProfileMobile),
		string(ProfileHQ),
	}
}
