package loader

import (
	"context"
	"database/sql"
	"fmt"
)

// The lms schema is the extractor-facing staging area of the warehouse.
// Surrogate keys are warehouse-local; LMS identity is the unique pair
// (SourceSystemIdentifier, SourceSystem). The edfi and lmsx schemas are
// provisioned by the ODS and never created here.
var stagingDDL = []string{
	`CREATE DATABASE IF NOT EXISTS lms`,

	`CREATE TABLE IF NOT EXISTS lms.LMSUser (
		LMSUserIdentifier INT AUTO_INCREMENT PRIMARY KEY,
		SourceSystemIdentifier VARCHAR(255) NOT NULL,
		SourceSystem VARCHAR(255) NOT NULL,
		UserRole VARCHAR(60) NULL,
		SISUserIdentifier VARCHAR(255) NULL,
		LocalUserIdentifier VARCHAR(255) NULL,
		Name VARCHAR(255) NULL,
		EmailAddress VARCHAR(255) NULL,
		SourceCreateDate DATETIME NULL,
		SourceLastModifiedDate DATETIME NULL,
		CreateDate DATETIME NOT NULL,
		LastModifiedDate DATETIME NOT NULL,
		EdFiStudentId CHAR(36) NULL,
		DeletedAt DATETIME NULL,
		UNIQUE KEY UK_LMSUser_SourceSystem (SourceSystemIdentifier, SourceSystem),
		KEY IX_LMSUser_EdFiStudentId (EdFiStudentId)
	)`,

	`CREATE TABLE IF NOT EXISTS lms.LMSSection (
		LMSSectionIdentifier INT AUTO_INCREMENT PRIMARY KEY,
		SourceSystemIdentifier VARCHAR(255) NOT NULL,
		SourceSystem VARCHAR(255) NOT NULL,
		SISSectionIdentifier VARCHAR(255) NULL,
		Title VARCHAR(255) NULL,
		SectionDescription TEXT NULL,
		Term VARCHAR(60) NULL,
		LMSSectionStatus VARCHAR(60) NULL,
		SourceCreateDate DATETIME NULL,
		SourceLastModifiedDate DATETIME NULL,
		CreateDate DATETIME NOT NULL,
		LastModifiedDate DATETIME NOT NULL,
		EdFiSectionId CHAR(36) NULL,
		DeletedAt DATETIME NULL,
		UNIQUE KEY UK_LMSSection_SourceSystem (SourceSystemIdentifier, SourceSystem),
		KEY IX_LMSSection_EdFiSectionId (EdFiSectionId)
	)`,

	`CREATE TABLE IF NOT EXISTS lms.Assignment (
		AssignmentIdentifier INT AUTO_INCREMENT PRIMARY KEY,
		SourceSystemIdentifier VARCHAR(255) NOT NULL,
		SourceSystem VARCHAR(255) NOT NULL,
		LMSSectionIdentifier INT NOT NULL,
		Title VARCHAR(255) NULL,
		AssignmentCategory VARCHAR(60) NULL,
		AssignmentDescription TEXT NULL,
		StartDateTime DATETIME NULL,
		EndDateTime DATETIME NULL,
		DueDateTime DATETIME NULL,
		SubmissionType VARCHAR(255) NULL,
		MaxPoints INT NULL,
		SourceCreateDate DATETIME NULL,
		SourceLastModifiedDate DATETIME NULL,
		CreateDate DATETIME NOT NULL,
		LastModifiedDate DATETIME NOT NULL,
		DeletedAt DATETIME NULL,
		UNIQUE KEY UK_Assignment_SourceSystem (SourceSystemIdentifier, SourceSystem),
		CONSTRAINT FK_Assignment_LMSSection FOREIGN KEY (LMSSectionIdentifier)
			REFERENCES lms.LMSSection (LMSSectionIdentifier)
	)`,

	`CREATE TABLE IF NOT EXISTS lms.AssignmentSubmission (
		AssignmentSubmissionIdentifier INT AUTO_INCREMENT PRIMARY KEY,
		SourceSystemIdentifier VARCHAR(255) NOT NULL,
		SourceSystem VARCHAR(255) NOT NULL,
		AssignmentIdentifier INT NOT NULL,
		LMSUserIdentifier INT NOT NULL,
		SubmissionStatus VARCHAR(255) NULL,
		SubmissionDateTime DATETIME NULL,
		EarnedPoints INT NULL,
		Grade VARCHAR(20) NULL,
		SourceCreateDate DATETIME NULL,
		SourceLastModifiedDate DATETIME NULL,
		CreateDate DATETIME NOT NULL,
		LastModifiedDate DATETIME NOT NULL,
		DeletedAt DATETIME NULL,
		UNIQUE KEY UK_AssignmentSubmission_SourceSystem (SourceSystemIdentifier, SourceSystem),
		CONSTRAINT FK_AssignmentSubmission_Assignment FOREIGN KEY (AssignmentIdentifier)
			REFERENCES lms.Assignment (AssignmentIdentifier),
		CONSTRAINT FK_AssignmentSubmission_LMSUser FOREIGN KEY (LMSUserIdentifier)
			REFERENCES lms.LMSUser (LMSUserIdentifier)
	)`,
}

// EnsureStagingSchema creates the lms schema and its tables when absent.
// Statements are idempotent so the loader can run it on every start.
func EnsureStagingSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range stagingDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure lms staging schema: %w", err)
		}
	}
	return nil
}
