package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SurveyDefinitionKey returns the cache key for a form's survey definition
func (r *CacheKeyStruct) SurveyDefinitionKey(formID string) string {
	return fmt.Sprintf("survey:%s:definition", formID)
}

// SessionSnapshotKey returns the cache key for the last saved answers of a session
func (r *CacheKeyStruct) SessionSnapshotKey(formID, sessionID string) string {
	return fmt.Sprintf("survey:%s:session:%s:answers", formID, sessionID)
}

var CacheKey = NewCacheKeyStruct()
