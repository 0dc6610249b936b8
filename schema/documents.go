package schema

import "time"

// Collection names of the default plan
const (
	PatientsCollection      = "patients"
	ConsultationsCollection = "consultations"
	TempFilesCollection     = "temp_files"
)

// Patient is the shape of a document in the patients collection
type Patient struct {
	ID             string    `bson:"id" json:"id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	FirstName      string    `bson:"first_name" json:"first_name"`
	MiddleName     string    `bson:"middle_name,omitempty" json:"middle_name,omitempty"`
	LastName       string    `bson:"last_name" json:"last_name"`
	SecondLastName string    `bson:"second_last_name,omitempty" json:"second_last_name,omitempty"`
	Address        string    `bson:"address" json:"address"`
	DateOfBirth    time.Time `bson:"date_of_birth" json:"date_of_birth"`
	Description    string    `bson:"description,omitempty" json:"description,omitempty"`
}

// Consultation is the shape of a document in the consultations collection.
// ConsultationID is unique across the collection.
type Consultation struct {
	ConsultationID string    `bson:"consultation_id" json:"consultation_id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	PatientID      string    `bson:"patient_id" json:"patient_id"`
	Date           time.Time `bson:"date" json:"date"`
	Time           string    `bson:"time" json:"time"`
	Description    string    `bson:"description" json:"description"`
	ReportTxt      string    `bson:"report_txt" json:"report_txt"`
	Resources      []string  `bson:"resources" json:"resources"`
}

// TempFile is the shape of a document in the temp_files collection.
// FileID is unique across the collection.
type TempFile struct {
	FileID         string    `bson:"file_id" json:"file_id"`
	ConsultationID string    `bson:"consultation_id" json:"consultation_id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	Filename       string    `bson:"filename" json:"filename"`
	ContentType    string    `bson:"content_type" json:"content_type"`
	FileData       []byte    `bson:"file_data" json:"file_data"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
