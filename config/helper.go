package config

// Load 加载并绑定指定节的配置到结构体 T，section 为空时绑定整个配置
func Load[T any](cfg Configuration, section string) (T, error) {
	var t T
	err := cfg.Bind(section, &t)
	return t, err
}

// LoadOr 与 Load 相同，但先以 defaults 为初值，配置中缺失的字段保持默认
func LoadOr[T any](cfg Configuration, section string, defaults T) (T, error) {
	t := defaults
	if err := cfg.Bind(section, &t); err != nil {
		return defaults, err
	}
	return t, nil
}
