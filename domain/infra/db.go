package infra

import (
	"context"
	"os"
	"path"

	"github.com/7FIl/CS-Bot/domain/model"
	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
)

// DataBase is the local sqlite backend, used for development and tests.
// gorm predates context plumbing, so the ctx arguments are accepted for
// interface parity and the sqlite file is trusted to answer promptly.
type DataBase struct {
	db *gorm.DB
}

func NewDataBase() (*DataBase, error) {
	dbpath := "./db/cs_bot.db"
	if os.Getenv("DB_PATH") != "" {
		dbpath = os.Getenv("DB_PATH")
	}
	if !path.IsAbs(dbpath) {
		dbpath = path.Join(os.Getenv("PWD"), dbpath)
	}
	db, err := gorm.Open("sqlite3", dbpath)
	if err != nil {
		return nil, err
	}
	db.AutoMigrate(&model.Ticket{})
	db.AutoMigrate(&model.FAQEntry{})
	return &DataBase{db: db}, nil
}

func (d *DataBase) SaveTicket(_ context.Context, t *model.Ticket) error {
	return storeErr("append ticket", d.db.Create(t).Error)
}

func (d *DataBase) GetTicketByOrderID(_ context.Context, orderID string) (*model.Ticket, error) {
	var t model.Ticket
	err := d.db.Where("order_id = ?", orderID).First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get ticket", err)
	}
	t.Status = model.NormalizeStatus(string(t.Status))
	return &t, nil
}

func (d *DataBase) UpdateTicketStatus(_ context.Context, orderID string, status model.Status) (bool, error) {
	res := d.db.Model(&model.Ticket{}).
		Where("order_id = ?", orderID).
		Update("status", string(status))
	if res.Error != nil {
		return false, storeErr("update ticket status", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *DataBase) ListTickets(_ context.Context, limit int) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := d.db.Order("ticket_number asc").Limit(limit).Find(&tickets).Error
	if err != nil {
		return nil, storeErr("list tickets", err)
	}
	for i := range tickets {
		tickets[i].Status = model.NormalizeStatus(string(tickets[i].Status))
	}
	return tickets, nil
}

func (d *DataBase) RecentTicketNumbers(_ context.Context, window int) ([]int64, error) {
	var tickets []model.Ticket
	err := d.db.Select("ticket_number").Order("ticket_number desc").Limit(window).Find(&tickets).Error
	if err != nil {
		return nil, storeErr("recent ticket numbers", err)
	}
	numbers := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		numbers = append(numbers, t.TicketNumber)
	}
	return numbers, nil
}

func (d *DataBase) LoadFAQ(_ context.Context) ([]model.FAQEntry, error) {
	var entries []model.FAQEntry
	if err := d.db.Find(&entries).Error; err != nil {
		return nil, storeErr("load faq", err)
	}
	return entries, nil
}

func (d *DataBase) AppendFAQ(_ context.Context, e *model.FAQEntry) error {
	return storeErr("append faq", d.db.Create(e).Error)
}

func (d *DataBase) DeleteFAQ(_ context.Context, triggerID string) (bool, error) {
	res := d.db.Where("trigger_id = ?", triggerID).Delete(&model.FAQEntry{})
	if res.Error != nil {
		return false, storeErr("delete faq", res.Error)
	}
	return res.RowsAffected > 0, nil
}
