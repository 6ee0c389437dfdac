package snippet

// DefaultIcon is used for weather codes without a dedicated asset.
const DefaultIcon = "10000_clear_large.png"

// icons maps Tomorrow.io weather codes to the daytime large PNG assets.
var icons = map[int]string{
	1000: "10000_clear_large.png",
	1100: "11000_mostly_clear_large.png",
	1101: "11010_partly_cloudy_large.png",
	1102: "11020_mostly_cloudy_large.png",
	1001: "10010_cloudy_large.png",
	2000: "20000_fog_large.png",
	2100: "21000_fog_light_large.png",
	4000: "40000_drizzle_large.png",
	4001: "40010_rain_large.png",
	4200: "42000_rain_light_large.png",
	4201: "42010_rain_heavy_large.png",
	5000: "50000_snow_large.png",
	5001: "50010_flurries_large.png",
	5100: "51000_snow_light_large.png",
	5101: "51010_snow_heavy_large.png",
	6000: "60000_freezing_rain_drizzle_large.png",
	6001: "60010_freezing_rain_large.png",
	6200: "62000_freezing_rain_light_large.png",
	6201: "62010_freezing_rain_heavy_large.png",
	7000: "70000_ice_pellets_large.png",
	7101: "71010_ice_pellets_heavy_large.png",
	7102: "71020_ice_pellets_light_large.png",
	8000: "80000_tstorm_large.png",
}

// Icon returns the asset file name for a weather code.
func Icon(code int) string {
	if name, ok := icons[code]; ok {
		return name
	}
	return DefaultIcon
}
