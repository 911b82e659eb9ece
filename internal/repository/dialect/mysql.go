package dialect

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/eventrelay/internal/model"
)

type mysqlLookup struct{}

const mysqlRunningJobParameterQuery = `
	SELECT dp.parameter_value
	FROM batch_job_instance bji
	JOIN batch_job_execution bje ON bje.job_instance_id = bji.job_instance_id
	JOIN batch_job_execution_params bjep ON bjep.job_execution_id = bje.job_execution_id
	JOIN batch_custom_job_parameters cjp ON cjp.id = CAST(bjep.parameter_value AS UNSIGNED)
	CROSS JOIN JSON_TABLE(cjp.parameter_json, '$[*]' COLUMNS (
		parameter_name VARCHAR(255) PATH '$.parameterName',
		parameter_value VARCHAR(1024) PATH '$.parameterValue'
	)) AS fp
	CROSS JOIN JSON_TABLE(cjp.parameter_json, '$[*]' COLUMNS (
		parameter_name VARCHAR(255) PATH '$.parameterName',
		parameter_value VARCHAR(1024) PATH '$.parameterValue'
	)) AS dp
	WHERE bji.job_name = ?
	AND bjep.parameter_name = ?
	AND bje.status IN ('STARTED', 'STARTING')
	AND bje.job_execution_id = (
		SELECT MAX(latest.job_execution_id)
		FROM batch_job_execution latest
		WHERE latest.job_instance_id = bji.job_instance_id
	)
	AND NOT EXISTS (
		SELECT 1 FROM batch_job_execution done
		WHERE done.job_instance_id = bji.job_instance_id
		AND done.status = 'COMPLETED'
	)
	AND fp.parameter_name = ?
	AND fp.parameter_value = ?
	AND dp.parameter_name = ?
	ORDER BY bje.job_execution_id DESC
	LIMIT 1
`

func (mysqlLookup) LookupParameterValue(ctx context.Context, q sqlx.QueryerContext, query model.RunningJobQuery) (*string, error) {
	query = query.WithDefaults()
	return scanOptional(ctx, q, mysqlRunningJobParameterQuery,
		query.JobName,
		query.JobParamKeyName,
		query.FilterParamName,
		query.FilterParamValue,
		query.DateParamName,
	)
}
