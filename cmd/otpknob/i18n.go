package main

// Minimal built-in translation layer for the on-device screens. The language
// cycles live on the Language screen and apply immediately, before the
// choice is persisted, so the user can read the menus while still choosing.

// Language describes one selectable UI language.
type Language struct {
	Code    string
	Native  string
	English string
}

// languages is the fixed cycle order on the Language screen.
var languages = []Language{
	{"en", "English", "English"},
	{"de", "Deutsch", "German"},
	{"fr", "Français", "French"},
	{"es", "Español", "Spanish"},
}

// langIndex maps a language code to its cycle position, defaulting to
// English for unknown or stale codes from old settings files.
func langIndex(code string) int {
	for i, l := range languages {
		if l.Code == code {
			return i
		}
	}
	return 0
}

var translations = map[string]map[string]string{
	"en": {
		"otp":            "OTP",
		"time":           "Time",
		"hue":            "Hue",
		"bright":         "Bright",
		"level":          "Level",
		"color_title":    "LED Color",
		"rotate_color":   "Rotate: change color",
		"press_next":     "Press: next screen",
		"bright_title":   "LED Brightness",
		"lang_title":     "Language",
		"rotate_lang":    "Rotate: pick language",
		"reset_title":    "Reset Menu",
		"next_screen":    "Back to start",
		"reset_wifi":     "Reset Wi-Fi",
		"reset_qr":       "Reset QR secret",
		"reset_both":     "Reset both",
		"scroll_hint":    "Rotate to select, press to choose. Reset deletes saved data!",
		"confirm_title":  "Are you sure?",
		"confirm_wifi":   "Erase Wi-Fi config",
		"confirm_qr":     "Erase QR secret",
		"confirm_both":   "Erase Wi-Fi + QR",
		"press_yes":      "Press: YES",
		"rotate_cancel":  "Rotate: cancel",
		"restarts_after": "Device restarts after",
		"resetting":      "Resetting...",
		"action":         "Action",
		"please_wait":    "Please wait",
	},
	"de": {
		"otp":            "OTP",
		"time":           "Zeit",
		"hue":            "Farbe",
		"bright":         "Hell",
		"level":          "Stufe",
		"color_title":    "LED-Farbe",
		"rotate_color":   "Drehen: Farbe ändern",
		"press_next":     "Drücken: weiter",
		"bright_title":   "LED-Helligkeit",
		"lang_title":     "Sprache",
		"rotate_lang":    "Drehen: Sprache wählen",
		"reset_title":    "Reset-Menü",
		"next_screen":    "Zurück zum Start",
		"reset_wifi":     "WLAN zurücksetzen",
		"reset_qr":       "QR-Secret löschen",
		"reset_both":     "Beides zurücksetzen",
		"scroll_hint":    "Drehen zum Wählen, drücken zum Bestätigen. Reset löscht Daten!",
		"confirm_title":  "Sind Sie sicher?",
		"confirm_wifi":   "WLAN-Konfig löschen",
		"confirm_qr":     "QR-Secret löschen",
		"confirm_both":   "WLAN + QR löschen",
		"press_yes":      "Drücken: JA",
		"rotate_cancel":  "Drehen: Abbruch",
		"restarts_after": "Gerät startet danach neu",
		"resetting":      "Zurücksetzen...",
		"action":         "Aktion",
		"please_wait":    "Bitte warten",
	},
	"fr": {
		"otp":            "OTP",
		"time":           "Temps",
		"hue":            "Teinte",
		"bright":         "Lumin",
		"level":          "Niveau",
		"color_title":    "Couleur LED",
		"rotate_color":   "Tourner: couleur",
		"press_next":     "Appuyer: suivant",
		"bright_title":   "Luminosité LED",
		"lang_title":     "Langue",
		"rotate_lang":    "Tourner: choisir langue",
		"reset_title":    "Menu Reset",
		"next_screen":    "Retour au début",
		"reset_wifi":     "Réinit. Wi-Fi",
		"reset_qr":       "Réinit. secret QR",
		"reset_both":     "Réinit. les deux",
		"scroll_hint":    "Tourner pour choisir, appuyer pour valider. Le reset efface les données!",
		"confirm_title":  "Êtes-vous sûr ?",
		"confirm_wifi":   "Effacer config Wi-Fi",
		"confirm_qr":     "Effacer secret QR",
		"confirm_both":   "Effacer Wi-Fi + QR",
		"press_yes":      "Appuyer: OUI",
		"rotate_cancel":  "Tourner: annuler",
		"restarts_after": "L'appareil redémarre",
		"resetting":      "Réinitialisation...",
		"action":         "Action",
		"please_wait":    "Patientez",
	},
	"es": {
		"otp":            "OTP",
		"time":           "Tiempo",
		"hue":            "Tono",
		"bright":         "Brillo",
		"level":          "Nivel",
		"color_title":    "Color LED",
		"rotate_color":   "Girar: cambiar color",
		"press_next":     "Pulsar: siguiente",
		"bright_title":   "Brillo LED",
		"lang_title":     "Idioma",
		"rotate_lang":    "Girar: elegir idioma",
		"reset_title":    "Menú Reset",
		"next_screen":    "Volver al inicio",
		"reset_wifi":     "Borrar Wi-Fi",
		"reset_qr":       "Borrar secreto QR",
		"reset_both":     "Borrar ambos",
		"scroll_hint":    "Girar para elegir, pulsar para confirmar. ¡Reset borra los datos!",
		"confirm_title":  "¿Está seguro?",
		"confirm_wifi":   "Borrar config Wi-Fi",
		"confirm_qr":     "Borrar secreto QR",
		"confirm_both":   "Borrar Wi-Fi + QR",
		"press_yes":      "Pulsar: SÍ",
		"rotate_cancel":  "Girar: cancelar",
		"restarts_after": "El equipo se reinicia",
		"resetting":      "Reiniciando...",
		"action":         "Acción",
		"please_wait":    "Espere",
	},
}

// tr resolves a UI string in the given language, falling back to English
// and finally to the key itself so a missing entry never blanks a line.
func tr(lang, key string) string {
	if m, ok := translations[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	if s, ok := translations["en"][key]; ok {
		return s
	}
	return key
}
