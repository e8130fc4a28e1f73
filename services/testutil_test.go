package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/itsbooked/sports_booking/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.ClassSlot{},
		&models.Booking{},
		&models.Attendance{},
	))
	return db
}

func seedOrganization(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()
	org := models.Organization{
		Name:               "Harbour Tennis Academy",
		ContactEmail:       "bookings@harbourtennis.test",
		PayfastMerchantID:  "10000100",
		PayfastMerchantKey: "46f0cd694581a",
		PayfastPassphrase:  "jt7NOE43FZPn",
		PayfastSandbox:     true,
	}
	require.NoError(t, db.Create(&org).Error)
	return &org
}

func seedSlot(t *testing.T, db *gorm.DB, org *models.Organization, capacity int, price string) *models.ClassSlot {
	t.Helper()
	amount, err := decimal.NewFromString(price)
	require.NoError(t, err)

	slot := models.ClassSlot{
		OrganizationID: org.ID,
		Name:           "Junior Squad Training",
		CoachName:      "T. Nkosi",
		Location:       "Court 2",
		StartTime:      time.Now().Add(48 * time.Hour),
		EndTime:        time.Now().Add(49 * time.Hour),
		Capacity:       capacity,
		Price:          amount,
		Currency:       "ZAR",
	}
	require.NoError(t, db.Create(&slot).Error)
	return &slot
}

func reloadSlot(t *testing.T, db *gorm.DB, slotID uuid.UUID) *models.ClassSlot {
	t.Helper()
	var slot models.ClassSlot
	require.NoError(t, db.First(&slot, "id = ?", slotID).Error)
	return &slot
}

func reloadBooking(t *testing.T, db *gorm.DB, bookingID uuid.UUID) *models.Booking {
	t.Helper()
	var booking models.Booking
	require.NoError(t, db.First(&booking, "id = ?", bookingID).Error)
	return &booking
}

func testParticipant() Participant {
	return Participant{
		Name:  "Lerato Dlamini",
		Email: "lerato@example.test",
		Phone: "0821234567",
	}
}
