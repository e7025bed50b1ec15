package testing

import (
	"fmt"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB    *TestDB
	faker *gofakeit.Faker
	seq   int
}

// NewTestFixtures creates a new test fixtures instance with a deterministic faker
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db, faker: gofakeit.New(42)}
}

func (tf *TestFixtures) next() int {
	tf.seq++
	return tf.seq
}

// CreateTemplate stores a template with the given body and status
func (tf *TestFixtures) CreateTemplate(body string, status models.TemplateStatus, variables ...string) (*models.Template, error) {
	template := &models.Template{
		UUID:       uuid.New(),
		Name:       fmt.Sprintf("%s_%d", tf.faker.Word(), tf.next()),
		Language:   "en_US",
		Category:   models.TemplateCategoryMarketing,
		Body:       body,
		HeaderType: models.TemplateHeaderNone,
		Buttons:    models.TemplateButtons{},
		Variables:  models.StringList(variables),
		Status:     status,
	}
	if err := tf.DB.DB.Create(template).Error; err != nil {
		return nil, fmt.Errorf("failed to create test template: %w", err)
	}
	return template, nil
}

// CreateContact stores an active contact with a unique E.164 UK mobile number
func (tf *TestFixtures) CreateContact() (*models.Contact, error) {
	return tf.CreateContactWithMobile(fmt.Sprintf("+4474%08d", tf.next()))
}

// CreateContactWithMobile stores an active contact using mobile verbatim
func (tf *TestFixtures) CreateContactWithMobile(mobile string) (*models.Contact, error) {
	email := tf.faker.Email()
	contact := &models.Contact{
		UUID:     uuid.New(),
		Name:     tf.faker.Name(),
		Mobile:   mobile,
		Email:    &email,
		IsActive: utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact: %w", err)
	}
	return contact, nil
}

// CreateContacts stores n active contacts
func (tf *TestFixtures) CreateContacts(n int) ([]*models.Contact, error) {
	contacts := make([]*models.Contact, 0, n)
	for i := 0; i < n; i++ {
		c, err := tf.CreateContact()
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// DeactivateContact flips a contact's active flag off
func (tf *TestFixtures) DeactivateContact(contact *models.Contact) error {
	contact.IsActive = utils.ToPtr(false)
	return tf.DB.DB.Model(contact).Update("is_active", false).Error
}

// CreateWhatsAppNumber stores a sender number
func (tf *TestFixtures) CreateWhatsAppNumber(active bool) (*models.WhatsAppNumber, error) {
	name := tf.faker.Company()
	number := &models.WhatsAppNumber{
		UUID:               uuid.New(),
		PhoneNumberID:      fmt.Sprintf("10%013d", tf.next()),
		AccessToken:        tf.faker.LetterN(48),
		DisplayPhoneNumber: fmt.Sprintf("+1555%07d", tf.next()),
		DisplayName:        &name,
		IsActive:           utils.ToPtr(active),
	}
	if err := tf.DB.DB.Create(number).Error; err != nil {
		return nil, fmt.Errorf("failed to create test whatsapp number: %w", err)
	}
	return number, nil
}

// CreateCampaignWithLogs stores a campaign in status with one message log per status given
func (tf *TestFixtures) CreateCampaignWithLogs(status models.CampaignStatus, logStatuses ...models.MessageLogStatus) (*models.Campaign, []*models.MessageLog, error) {
	template, err := tf.CreateTemplate("Hello {{name}}", models.TemplateStatusApproved, "name")
	if err != nil {
		return nil, nil, err
	}
	number, err := tf.CreateWhatsAppNumber(true)
	if err != nil {
		return nil, nil, err
	}

	campaign := &models.Campaign{
		UUID:             uuid.New(),
		Name:             tf.faker.BuzzWord(),
		WhatsAppNumberID: number.ID,
		TemplateID:       template.ID,
		Status:           status,
		TotalMessages:    uint64(len(logStatuses)),
	}
	if status != models.CampaignStatusPending {
		campaign.StartedAt = utils.UTCNowPtr()
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create test campaign: %w", err)
	}

	logs := make([]*models.MessageLog, 0, len(logStatuses))
	for i, s := range logStatuses {
		contact, err := tf.CreateContact()
		if err != nil {
			return nil, nil, err
		}
		log := &models.MessageLog{
			CampaignID:       campaign.ID,
			ContactID:        contact.ID,
			WhatsAppNumberID: number.ID,
			TemplateID:       template.ID,
			Mobile:           contact.Mobile,
			Content:          "Hello " + contact.Name,
			Variables:        models.StringMap{"name": contact.Name},
			Status:           s,
		}
		if s != models.MessageLogStatusPending {
			wamid := fmt.Sprintf("wamid.%d.%d", campaign.ID, i)
			log.ProviderMessageID = &wamid
			log.SentAt = utils.UTCNowPtr()
		}
		if s == models.MessageLogStatusFailed {
			log.ErrorMessage = utils.ToPtr("(#131026) Message undeliverable")
			log.FailedAt = utils.UTCNowPtr()
		}
		if err := tf.DB.DB.Create(log).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to create test message log: %w", err)
		}
		logs = append(logs, log)
	}

	return campaign, logs, nil
}
