package pairing

import (
	"strconv"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/as3contender/alex-orator-bot/pkg/ui"
	"gorm.io/gorm"
)

func recipient(u db.User) string {
	return strconv.FormatInt(u.TelegramID, 10)
}

func (m *Manager) notifyCreated(tx *gorm.DB, pair db.Pair, proposer, invitee db.User) error {
	text, keyboard, err := ui.RenderPairProposal(pair.ID, proposer)
	if err != nil {
		return err
	}
	_, err = m.queue.EnqueueTx(tx, recipient(invitee), text, keyboard)
	return err
}

func (m *Manager) notifyConfirmed(tx *gorm.DB, pair db.Pair, actingUserID string) error {
	users, err := loadUsers(tx, pair.UserA, pair.UserB)
	if err != nil {
		return err
	}
	actor, partner := users[actingUserID], users[pair.Partner(actingUserID)]

	if _, err := m.queue.EnqueueTx(tx, recipient(partner), ui.RenderPairConfirmedForPartner(actor), nil); err != nil {
		return err
	}
	text, keyboard := ui.RenderPairConfirmedForActor(partner)
	_, err = m.queue.EnqueueTx(tx, recipient(actor), text, keyboard)
	return err
}

func (m *Manager) notifyCancelled(tx *gorm.DB, pair db.Pair, actingUserID string) error {
	users, err := loadUsers(tx, pair.UserA, pair.UserB)
	if err != nil {
		return err
	}
	counterpart := users[pair.Partner(actingUserID)]
	_, err = m.queue.EnqueueTx(tx, recipient(counterpart), ui.RenderPairCancelled(users[actingUserID]), nil)
	return err
}

func loadUsers(tx *gorm.DB, ids ...string) (map[string]db.User, error) {
	var users []db.User
	if err := tx.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errs.Storage("load users", err)
	}
	byID := make(map[string]db.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, errs.NotFound("user", id)
		}
	}
	return byID, nil
}
