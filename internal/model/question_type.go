package model

// QuestionType enumerates the widget kinds a survey question can declare.
// The string values are the ones survey definitions carry on the wire.
type QuestionType string

const (
	QuestionTypeSingleChoice        QuestionType = "MCQ (Single Choice)"
	QuestionTypeMultipleChoice      QuestionType = "MCQ (Multiple Choice)"
	QuestionTypeImageSingleChoice   QuestionType = "MCQ (Image Single Choice)"
	QuestionTypeImageMultipleChoice QuestionType = "MCQ (Image Multiple Choice)"
	QuestionTypeDropdown            QuestionType = "Dropdown"
	QuestionTypeShortText           QuestionType = "Small Answer"
	QuestionTypeLongText            QuestionType = "Large Answer"
	QuestionTypeNumber              QuestionType = "Number"
	QuestionTypeDate                QuestionType = "Date"
	QuestionTypeTimestamp           QuestionType = "Timestamp"
	QuestionTypeRating              QuestionType = "Rating"
	QuestionTypeFileUpload          QuestionType = "File Upload"
	QuestionTypeAudio               QuestionType = "Audio"
	QuestionTypeMatrix              QuestionType = "Matrix"
	QuestionTypeBarcode             QuestionType = "Barcode"
	QuestionTypeImeiSales           QuestionType = "IMEI Sales"
	QuestionTypeInformation         QuestionType = "Information"

	// legacy alias for QuestionTypeShortText
	questionTypeText QuestionType = "Text"
)

// Normalize folds legacy aliases onto their canonical type.
func (t QuestionType) Normalize() QuestionType {
	if t == questionTypeText {
		return QuestionTypeShortText
	}
	return t
}

// IsMultiSelect reports whether answers are a list of option ids.
func (t QuestionType) IsMultiSelect() bool {
	return t == QuestionTypeMultipleChoice || t == QuestionTypeImageMultipleChoice
}

// IsText reports whether the question takes free text.
func (t QuestionType) IsText() bool {
	switch t.Normalize() {
	case QuestionTypeShortText, QuestionTypeLongText:
		return true
	}
	return false
}

// IsUpload reports whether the answer is the URL of an uploaded artifact.
func (t QuestionType) IsUpload() bool {
	return t == QuestionTypeFileUpload || t == QuestionTypeAudio
}
