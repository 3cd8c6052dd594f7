package models

// TranslationPayload is the formatted input handed to the translator.
type TranslationPayload struct {
	Channel string
	Text    string
	HTML    string
	Link    string
	Meta    Metadata
}
