package model

// FAQEntry is one row in the FAQ table. Mutations happen only through the
// operator console, never through the ticket lifecycle.
type FAQEntry struct {
	ID           uint   `gorm:"primary_key"`
	TriggerID    string `gorm:"type:varchar(50);index"`
	ButtonLabel  string `gorm:"type:varchar(80)"`
	ResponseText string `gorm:"type:text"`
}
